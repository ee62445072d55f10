package document

import (
	"net/url"
	"strings"

	"github.com/samaecole/backend/core/phone"
)

const whatsAppBase = "https://wa.me/"

// WhatsAppLink builds the deep link opening a chat with number prefilled with text.
// Numbers that do not normalize return a *phone.Error and no link.
func WhatsAppLink(number, text string) (string, error) {
	canon, err := phone.Normalize(number)
	if err != nil {
		return "", err
	}
	link := whatsAppBase + canon
	if text = strings.TrimSpace(text); text != "" {
		link += "?text=" + url.QueryEscape(text)
	}
	return link, nil
}

type ShareRequest struct {
	Phone   string `json:"phone"`   // defaults to the guardian phone
	Message string `json:"message"` // prepended to the document URL
}

type Share struct {
	Phone       string `json:"phone"`
	DocumentURL string `json:"document_url"`
	Link        string `json:"link"`
}
