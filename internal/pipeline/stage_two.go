package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wesleyorama2/fusillade/internal/ctxlog"
	"github.com/wesleyorama2/fusillade/internal/digest"
	"github.com/wesleyorama2/fusillade/internal/mailer"
	"github.com/wesleyorama2/fusillade/internal/naming"
	"github.com/wesleyorama2/fusillade/internal/store"
)

// StageTwo saves a manifest of the raw reports, then one of the rendered
// reports, then mails the digest. The steps run strictly in that order and
// the first failure aborts the stage.
func StageTwo(ctx context.Context, s *Session) error {
	for _, kind := range store.Kinds {
		if _, err := collect(ctx, s, kind); err != nil {
			return err
		}
	}
	return notify(ctx, s)
}

// collect persists a manifest listing every report of kind, even when there
// are none.
func collect(ctx context.Context, s *Session, kind store.Kind) (*store.Manifest, error) {
	paths, err := globKind(s.Config.LogRoot, kind)
	if err != nil {
		return nil, err
	}

	m := &store.Manifest{
		Kind:         kind,
		SessionKey:   s.Key,
		FilePathList: paths,
		CreatedAt:    s.Now(),
	}
	if err := s.Store.SaveManifest(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to save %s manifest: %w", kind, err)
	}

	ctxlog.FromContext(ctx).Info("manifest saved", "kind", kind, "id", m.ID, "files", len(paths))
	return m, nil
}

// notify sends one email carrying every rendered report as an attachment.
func notify(ctx context.Context, s *Session) error {
	logger := ctxlog.FromContext(ctx)

	paths, err := globKind(s.Config.LogRoot, store.KindHTML)
	if err != nil {
		return err
	}

	d := &digest.Digest{SessionKey: s.Key, StartedAt: s.StartedAt}
	attachments := make([]mailer.Attachment, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read report: %w", err)
		}

		name := filepath.Base(p)
		attachments = append(attachments, mailer.Attachment{
			Filename:    name,
			Content:     content,
			ContentType: "text/html; charset=utf-8",
		})

		subKey := strings.TrimSuffix(name, filepath.Ext(name))
		entry := digest.Entry{Name: subKey, Attachment: name}
		if raw, err := os.ReadFile(naming.RawReportPath(s.Config.LogRoot, subKey)); err == nil {
			if summary, err := digest.Summarize(string(raw)); err == nil {
				entry.Summary = summary
			} else {
				logger.Debug("raw report not summarized", "subKey", subKey, "error", err)
			}
		}
		d.Entries = append(d.Entries, entry)
	}

	htmlBody, err := digest.RenderHTML(d)
	if err != nil {
		return fmt.Errorf("failed to render digest: %w", err)
	}

	msg := &mailer.Message{
		From:        s.Config.Mail.From,
		To:          s.Config.Mail.To,
		Cc:          s.Config.Mail.Cc,
		Subject:     mailer.RenderSubject(s.Config.Mail.Subject, s.Now()),
		HTMLBody:    htmlBody,
		TextBody:    digest.RenderText(d),
		Attachments: attachments,
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}

	logger.Info("digest sent", "subject", msg.Subject, "attachments", len(attachments))
	return nil
}

func globKind(logRoot string, kind store.Kind) ([]string, error) {
	paths, err := filepath.Glob(naming.KindGlob(logRoot, string(kind)))
	if err != nil {
		return nil, fmt.Errorf("failed to glob %s reports: %w", kind, err)
	}
	if paths == nil {
		paths = []string{}
	}
	return paths, nil
}
