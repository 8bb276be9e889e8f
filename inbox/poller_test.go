package inbox

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/sirupsen/logrus"

	"coldreach/models"
	"coldreach/utils"
)

func startIMAPServer(t *testing.T) (host string, port int, mbox *memory.Mailbox, stop func()) {
	t.Helper()

	be := memory.New()
	s := server.New(be)
	s.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	go s.Serve(ln)

	user, err := be.Login(nil, "username", "password")
	if err != nil {
		t.Fatalf("backend login: %v", err)
	}
	backendMbox, err := user.GetMailbox("INBOX")
	if err != nil {
		t.Fatalf("opening INBOX: %v", err)
	}

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("splitting address: %v", err)
	}
	port, _ = strconv.Atoi(portStr)
	return host, port, backendMbox.(*memory.Mailbox), func() { s.Close() }
}

func appendMessage(t *testing.T, mbox *memory.Mailbox, messageID string) {
	t.Helper()
	raw := "Message-Id: " + messageID + "\r\n" +
		"From: Ada <ada@ext.example>\r\n" +
		"To: sales@acme.example\r\n" +
		"Subject: Re: Quick question\r\n" +
		"Date: Mon, 24 Aug 2026 10:00:00 +0000\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Sounds good.\r\n"
	if err := mbox.CreateMessage(nil, time.Now(), strings.NewReader(raw)); err != nil {
		t.Fatalf("appending message: %v", err)
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// A poll must flag what it ingested as seen so the unseen search acts as
// a checkpoint and mail arriving later is still picked up.
func TestPollAccountMarksSeenAndIngestsLaterMail(t *testing.T) {
	db := newTestDB(t)
	host, port, mbox, stop := startIMAPServer(t)
	defer stop()

	cipher := utils.NewCipher("test-passphrase")
	encrypted, err := cipher.Encrypt("password")
	if err != nil {
		t.Fatalf("encrypting password: %v", err)
	}

	owner := &models.User{EmailCheckDelay: 300}
	if err := db.Create(owner).Error; err != nil {
		t.Fatalf("seeding owner: %v", err)
	}
	account := &models.EmailAccount{
		UserID:         owner.ID,
		Email:          "sales@acme.example",
		IsActive:       true,
		IMAPHost:       host,
		IMAPPort:       port,
		IMAPUsername:   "username",
		IMAPPassword:   encrypted,
		IMAPEncryption: "none",
		IMAPMailbox:    "INBOX",
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("seeding account: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	p := NewPoller(db, cipher, NewMatcher(db, logger), logger, utils.OAuthCredentials{}, utils.OAuthCredentials{})

	appendMessage(t, mbox, "<reply1@ext.example>")
	if err := p.PollAccount(context.Background(), account, owner); err != nil {
		t.Fatalf("first poll: %v", err)
	}

	var count int64
	db.Model(&models.ReceivedEmail{}).Where("message_id = ?", "<reply1@ext.example>").Count(&count)
	if count != 1 {
		t.Fatalf("first message rows = %d, want 1", count)
	}
	for _, m := range mbox.Messages {
		if !hasFlag(m.Flags, imap.SeenFlag) {
			t.Fatalf("message uid %d left unseen after poll", m.Uid)
		}
	}

	// Mail arriving between polls must be ingested by the next one.
	appendMessage(t, mbox, "<reply2@ext.example>")
	if err := p.PollAccount(context.Background(), account, owner); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	db.Model(&models.ReceivedEmail{}).Where("message_id = ?", "<reply2@ext.example>").Count(&count)
	if count != 1 {
		t.Fatalf("later message rows = %d, want 1", count)
	}
	db.Model(&models.ReceivedEmail{}).Count(&count)
	if count != 2 {
		t.Fatalf("total rows = %d, want 2", count)
	}
}
