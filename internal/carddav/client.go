// Package carddav implements a CardDAV (RFC 6352) client for contacts,
// serialized as vCard 3.0.
package carddav

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	gocarddav "github.com/emersion/go-webdav/carddav"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/logging"
)

// Contact is the engine's view of an address book entry
type Contact struct {
	ID       string   `json:"id"` // resource path
	FullName string   `json:"fullName"`
	Emails   []string `json:"emails,omitempty"`
	Phones   []string `json:"phones,omitempty"`
	Org      string   `json:"org,omitempty"`
}

// Client talks to one CardDAV address book
type Client struct {
	client      *gocarddav.Client
	addressBook string
	log         zerolog.Logger
}

// DiscoverURL returns the conventional SOGo-style personal address book
// when no richer discovery is configured.
func DiscoverURL(host, username string) string {
	return fmt.Sprintf("https://%s/SOGo/dav/%s/Contacts/personal/", host, url.PathEscape(username))
}

// NewClient creates a CardDAV client for one address book URL.
// Self-signed certificates are accepted per user-level policy.
func NewClient(addressBookURL, username, password string, allowSelfSigned bool) (*Client, error) {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: allowSelfSigned},
		},
	}

	davClient, err := gocarddav.NewClient(
		webdav.HTTPClientWithBasicAuth(httpClient, username, password),
		addressBookURL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CardDAV client: %w", err)
	}

	u, err := url.Parse(addressBookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid address book URL: %w", err)
	}

	return &Client{
		client:      davClient,
		addressBook: u.Path,
		log:         logging.WithComponent("carddav"),
	}, nil
}

// ListContacts fetches all contacts in the address book. Entries whose
// cards lack a formatted name are kept with an empty name rather than
// dropped.
func (c *Client) ListContacts(ctx context.Context) ([]*Contact, error) {
	query := &gocarddav.AddressBookQuery{
		DataRequest: gocarddav.AddressDataRequest{AllProp: true},
	}

	objects, err := c.client.QueryAddressBook(ctx, c.addressBook, query)
	if err != nil {
		return nil, fmt.Errorf("address book query failed: %w", err)
	}

	contacts := make([]*Contact, 0, len(objects))
	for _, obj := range objects {
		contacts = append(contacts, contactFromCard(obj.Path, obj.Card))
	}

	c.log.Debug().Int("count", len(contacts)).Msg("Listed contacts")
	return contacts, nil
}

func contactFromCard(objPath string, card vcard.Card) *Contact {
	contact := &Contact{ID: objPath}

	if fn := card.PreferredValue(vcard.FieldFormattedName); fn != "" {
		contact.FullName = fn
	}
	for _, f := range card[vcard.FieldEmail] {
		if f.Value != "" {
			contact.Emails = append(contact.Emails, f.Value)
		}
	}
	for _, f := range card[vcard.FieldTelephone] {
		if f.Value != "" {
			contact.Phones = append(contact.Phones, f.Value)
		}
	}
	if org := card.PreferredValue(vcard.FieldOrganization); org != "" {
		contact.Org = org
	}

	return contact
}

func cardFromContact(contact *Contact) vcard.Card {
	card := vcard.Card{}
	card.SetValue(vcard.FieldVersion, "3.0")
	card.SetValue(vcard.FieldFormattedName, contact.FullName)
	for _, email := range contact.Emails {
		card.Add(vcard.FieldEmail, &vcard.Field{Value: email})
	}
	for _, phone := range contact.Phones {
		card.Add(vcard.FieldTelephone, &vcard.Field{Value: phone})
	}
	if contact.Org != "" {
		card.SetValue(vcard.FieldOrganization, contact.Org)
	}
	return card
}

// SaveContact creates or updates a contact. A contact without an ID is
// assigned a fresh resource path.
func (c *Client) SaveContact(ctx context.Context, contact *Contact) (*Contact, error) {
	if contact.FullName == "" {
		return nil, fmt.Errorf("contact has no name")
	}
	if contact.ID == "" {
		contact.ID = path.Join(c.addressBook, uuid.New().String()+".vcf")
	}

	card := cardFromContact(contact)
	if _, err := c.client.PutAddressObject(ctx, contact.ID, card); err != nil {
		return nil, fmt.Errorf("failed to store contact: %w", err)
	}

	c.log.Debug().Str("path", contact.ID).Msg("Contact saved")
	return contact, nil
}

// DeleteContact removes a contact resource
func (c *Client) DeleteContact(ctx context.Context, contactID string) error {
	if !strings.HasPrefix(contactID, "/") && !strings.HasPrefix(contactID, c.addressBook) {
		contactID = path.Join(c.addressBook, contactID)
	}
	if err := c.client.RemoveAll(ctx, contactID); err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	return nil
}
