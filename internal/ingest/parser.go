package ingest

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaytaylor/html2text"
	"github.com/jhillyerd/enmime"

	"github.com/Mananshah237/PhishNet/internal/models"
	"github.com/Mananshah237/PhishNet/internal/urlutil"
)

// SourceUploadEML marks emails that arrived as raw .eml uploads.
const SourceUploadEML = "upload:eml"

// Parse decodes a raw RFC 5322 message into an Email ready for storage.
// Attachments are ignored; only the envelope headers and the text and HTML
// bodies are kept. URL extraction runs over both bodies so links that appear
// only in the HTML part are still captured.
func Parse(raw []byte) (*models.Email, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	bodyText := strings.TrimSpace(env.Text)
	bodyHTML := env.HTML

	// Some messages carry only an HTML part. Derive a text body from it so
	// downstream scoring and rewriting always have plain text to work with.
	if bodyText == "" && bodyHTML != "" {
		if text, err := html2text.FromString(bodyHTML, html2text.Options{TextOnly: true}); err == nil {
			bodyText = strings.TrimSpace(text)
		}
	}

	urls := mergeURLs(urlutil.ExtractURLs(bodyText), urlutil.ExtractURLs(bodyHTML))

	email := &models.Email{
		ID:            uuid.New().String(),
		Source:        SourceUploadEML,
		Subject:       env.GetHeader("Subject"),
		FromAddr:      env.GetHeader("From"),
		ToAddr:        env.GetHeader("To"),
		DateHdr:       env.GetHeader("Date"),
		RawHeaders:    rawHeaders(env),
		BodyText:      bodyText,
		BodyHTML:      bodyHTML,
		ExtractedURLs: urls,
		DefangedURLs:  urlutil.DefangAll(urls),
		CreatedAt:     time.Now().UTC(),
	}

	return email, nil
}

func mergeURLs(lists ...[]string) models.StringList {
	seen := make(map[string]struct{})
	merged := models.StringList{}
	for _, list := range lists {
		for _, u := range list {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			merged = append(merged, u)
		}
	}
	sort.Strings(merged)
	return merged
}

func rawHeaders(env *enmime.Envelope) string {
	keys := env.GetHeaderKeys()
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		for _, value := range env.GetHeaderValues(key) {
			fmt.Fprintf(&b, "%s: %s\n", key, value)
		}
	}
	return b.String()
}
