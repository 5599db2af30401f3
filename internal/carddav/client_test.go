package carddav

import (
	"testing"

	"github.com/emersion/go-vcard"
)

func TestContactCardRoundTrip(t *testing.T) {
	contact := &Contact{
		ID:       "/dav/contacts/abc.vcf",
		FullName: "Alice Example",
		Emails:   []string{"alice@example.com", "a.example@work.example"},
		Phones:   []string{"+49 30 1234567"},
		Org:      "Example GmbH",
	}

	card := cardFromContact(contact)
	got := contactFromCard(contact.ID, card)

	if got.FullName != contact.FullName || got.Org != contact.Org {
		t.Errorf("round trip = %+v", got)
	}
	if len(got.Emails) != 2 || got.Emails[0] != "alice@example.com" {
		t.Errorf("emails = %v", got.Emails)
	}
	if len(got.Phones) != 1 {
		t.Errorf("phones = %v", got.Phones)
	}
	if card.Value(vcard.FieldVersion) != "3.0" {
		t.Errorf("version = %q, want vCard 3.0", card.Value(vcard.FieldVersion))
	}
}

func TestDiscoverURL(t *testing.T) {
	got := DiscoverURL("mail.example.com", "user@example.com")
	want := "https://mail.example.com/SOGo/dav/user@example.com/Contacts/personal/"
	if got != want {
		t.Errorf("DiscoverURL = %q, want %q", got, want)
	}
}
