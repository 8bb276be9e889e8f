package inbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"coldreach/models"
	"coldreach/utils"
)

const (
	dialTimeout   = 15 * time.Second
	fetchBatchCap = 50
)

// Poller fetches unseen mail from every active account's mailbox and
// hands each message to the matcher.
type Poller struct {
	db      *gorm.DB
	cipher  *utils.Cipher
	matcher *Matcher
	logger  *logrus.Logger
	creds   map[string]utils.OAuthCredentials
}

func NewPoller(db *gorm.DB, cipher *utils.Cipher, matcher *Matcher, logger *logrus.Logger, google, microsoft utils.OAuthCredentials) *Poller {
	return &Poller{
		db:      db,
		cipher:  cipher,
		matcher: matcher,
		logger:  logger,
		creds: map[string]utils.OAuthCredentials{
			"gmail":   google,
			"outlook": microsoft,
		},
	}
}

// PollAll checks every pollable account whose owner-configured interval
// has elapsed. Per-account failures are logged and reported, never
// propagated, so one broken mailbox cannot stall the rest.
func (p *Poller) PollAll(ctx context.Context, now time.Time) {
	var accounts []models.EmailAccount
	if err := p.db.WithContext(ctx).
		Where("is_active = ? AND imap_host <> ''", true).
		Find(&accounts).Error; err != nil {
		p.logger.WithError(err).Error("listing accounts for inbox poll")
		sentry.CaptureException(err)
		return
	}

	for i := range accounts {
		account := &accounts[i]

		owner := &models.User{}
		if err := p.db.WithContext(ctx).First(owner, account.UserID).Error; err != nil {
			p.logger.WithError(err).WithField("account_id", account.ID).Error("loading account owner")
			continue
		}

		interval := time.Duration(owner.EmailCheckDelay) * time.Second
		if account.LastPolledAt != nil && now.Sub(*account.LastPolledAt) < interval {
			continue
		}

		if err := p.PollAccount(ctx, account, owner); err != nil {
			p.logger.WithFields(logrus.Fields{
				"account_id": account.ID,
				"email":      account.Email,
				"error":      err.Error(),
			}).Error("inbox poll failed")
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("component", "inbox-poller")
				scope.SetExtra("account_id", account.ID)
				sentry.CaptureException(err)
			})
			models.LogActivity(p.db, models.ActivityLog{
				UserID:    owner.ID,
				Source:    "receive",
				Level:     "error",
				Message:   fmt.Sprintf("Checking %s failed: %v", account.Email, err),
				AccountID: &account.ID,
			})
		}

		if err := p.db.WithContext(ctx).Model(account).
			Update("last_polled_at", now).Error; err != nil {
			p.logger.WithError(err).Warn("recording poll time failed")
		}
	}
}

// PollAccount opens one IMAP session, ingests up to fetchBatchCap unseen
// messages, and logs out.
func (p *Poller) PollAccount(ctx context.Context, account *models.EmailAccount, owner *models.User) error {
	c, err := p.dial(account)
	if err != nil {
		return err
	}
	defer c.Logout()

	if err := p.login(ctx, c, account); err != nil {
		return err
	}

	mailbox := account.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, false); err != nil {
		return fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("searching unseen messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if len(ids) > fetchBatchCap {
		// Keep the newest messages; the older backlog is picked up once
		// these are flagged seen.
		ids = ids[len(ids)-fetchBatchCap:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	ingested := 0
	processed := new(imap.SeqSet)
	for msg := range messages {
		parsed, err := parseIMAPMessage(msg, section)
		if err != nil {
			p.logger.WithError(err).WithField("account_id", account.ID).Warn("unparseable message skipped")
			processed.AddNum(msg.SeqNum)
			continue
		}
		if _, err := p.matcher.Ingest(ctx, account, owner, parsed); err != nil {
			// Left unseen so the next poll retries it.
			p.logger.WithError(err).WithField("account_id", account.ID).Error("message ingest failed")
			continue
		}
		processed.AddNum(msg.SeqNum)
		ingested++
	}
	if err := <-done; err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}

	// Flag everything ingested as seen; the unseen search is the poll
	// checkpoint, so without this the same batch would be fetched forever
	// and newer mail would never enter a full batch.
	if !processed.Empty() {
		flagItem := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.Store(processed, flagItem, []interface{}{imap.SeenFlag}, nil); err != nil {
			return fmt.Errorf("flagging processed messages: %w", err)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"account_id": account.ID,
		"email":      account.Email,
		"messages":   ingested,
	}).Info("inbox poll complete")
	return nil
}

func (p *Poller) dial(account *models.EmailAccount) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)
	dialer := &net.Dialer{Timeout: dialTimeout}
	tlsConfig := &tls.Config{ServerName: account.IMAPHost}

	switch strings.ToLower(account.IMAPEncryption) {
	case "ssl", "tls":
		return client.DialWithDialerTLS(dialer, addr, tlsConfig)
	case "starttls":
		c, err := client.DialWithDialer(dialer, addr)
		if err != nil {
			return nil, err
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Logout()
			return nil, err
		}
		return c, nil
	default:
		return client.DialWithDialer(dialer, addr)
	}
}

func (p *Poller) login(ctx context.Context, c *client.Client, account *models.EmailAccount) error {
	username := account.IMAPUsername
	if username == "" {
		username = account.Email
	}

	if account.UsesOAuth() {
		refresh, err := p.cipher.Decrypt(account.OAuthRefreshToken)
		if err != nil {
			return fmt.Errorf("decrypting refresh token: %w", err)
		}
		token, err := utils.AccessToken(ctx, account, refresh, p.creds[account.ProviderType])
		if err != nil {
			return err
		}
		return c.Authenticate(utils.XOAUTH2SASLClient(username, token))
	}

	password, err := p.cipher.Decrypt(account.IMAPPassword)
	if err != nil {
		return fmt.Errorf("decrypting imap password: %w", err)
	}
	return c.Login(username, password)
}

// parseIMAPMessage reduces a fetched message to the fields the matcher
// needs, walking MIME parts for the text and html bodies.
func parseIMAPMessage(msg *imap.Message, section *imap.BodySectionName) (*ParsedMessage, error) {
	if msg == nil {
		return nil, fmt.Errorf("empty message")
	}
	literal := msg.GetBody(section)
	if literal == nil {
		return nil, fmt.Errorf("message body section missing")
	}

	mr, err := mail.CreateReader(literal)
	if err != nil {
		return nil, fmt.Errorf("creating message reader: %w", err)
	}

	parsed := &ParsedMessage{
		MessageID:  mr.Header.Get("Message-Id"),
		InReplyTo:  mr.Header.Get("In-Reply-To"),
		References: ParseReferences(mr.Header.Get("References")),
		Subject:    mr.Header.Get("Subject"),
		FromEmail:  mr.Header.Get("From"),
		ToEmail:    mr.Header.Get("To"),
		ReceivedAt: msg.InternalDate,
	}
	if subject, err := mr.Header.Subject(); err == nil && subject != "" {
		parsed.Subject = subject
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		parsed.FromEmail = from[0].Address
		parsed.FromName = from[0].Name
	}
	if to, err := mr.Header.AddressList("To"); err == nil && len(to) > 0 {
		parsed.ToEmail = to[0].Address
	}
	if parsed.ReceivedAt.IsZero() {
		parsed.ReceivedAt = time.Now()
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			b, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			if strings.Contains(contentType, "text/html") {
				parsed.BodyHTML = string(b)
			} else if strings.Contains(contentType, "text/plain") {
				parsed.BodyText = string(b)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			size, _ := io.Copy(io.Discard, part.Body)
			parsed.Attachments = append(parsed.Attachments, models.EmailAttachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        int(size),
			})
		}
	}

	return parsed, nil
}
