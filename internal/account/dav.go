package account

import (
	"context"
	"fmt"

	"github.com/zitrone/mailengine/internal/caldav"
	"github.com/zitrone/mailengine/internal/carddav"
)

// The DAV clients are stateless HTTP like the ManageSieve commands:
// each command builds a client from its arguments, so no session is
// pinned in the registry maps.

// davPassword resolves the credential for a DAV command: the explicit
// argument first, then the OS keyring under the username.
func (r *Registry) davPassword(username, password string) (string, error) {
	if password != "" {
		return password, nil
	}
	if r.creds != nil {
		if pw, err := r.creds.Password(username); err == nil && pw != "" {
			return pw, nil
		}
	}
	return "", fmt.Errorf("no credential supplied or stored for %q", username)
}

func (r *Registry) calDAVClient(args commandArgs) (*caldav.Client, error) {
	if args.Username == "" {
		return nil, fmt.Errorf("caldav commands require a username")
	}

	url := args.URL
	if url == "" {
		if args.Host == "" {
			return nil, fmt.Errorf("caldav commands require a url or host")
		}
		url = caldav.DiscoverURL(args.Host, args.Username)
	}

	password, err := r.davPassword(args.Username, args.Password)
	if err != nil {
		return nil, err
	}

	return caldav.NewClient(url, args.Username, password, true), nil
}

func (r *Registry) cardDAVClient(args commandArgs) (*carddav.Client, error) {
	if args.Username == "" {
		return nil, fmt.Errorf("carddav commands require a username")
	}

	url := args.URL
	if url == "" {
		if args.Host == "" {
			return nil, fmt.Errorf("carddav commands require a url or host")
		}
		url = carddav.DiscoverURL(args.Host, args.Username)
	}

	password, err := r.davPassword(args.Username, args.Password)
	if err != nil {
		return nil, err
	}

	return carddav.NewClient(url, args.Username, password, true)
}

// ListCalendars lists calendar collections under the DAV home
func (r *Registry) ListCalendars(ctx context.Context, args commandArgs) ([]*caldav.Calendar, error) {
	client, err := r.calDAVClient(args)
	if err != nil {
		return nil, err
	}
	return client.FetchCalendars(ctx)
}

// FetchEvents lists VEVENTs in a calendar within a time range
func (r *Registry) FetchEvents(ctx context.Context, args commandArgs) ([]*caldav.Event, error) {
	client, err := r.calDAVClient(args)
	if err != nil {
		return nil, err
	}
	return client.FetchEvents(ctx, args.CalendarID, args.RangeStart, args.RangeEnd)
}

// FetchTasks lists VTODOs in a calendar
func (r *Registry) FetchTasks(ctx context.Context, args commandArgs) ([]*caldav.Task, error) {
	client, err := r.calDAVClient(args)
	if err != nil {
		return nil, err
	}
	return client.FetchTasks(ctx, args.CalendarID)
}

// CreateEvent PUTs a new event and returns its UID
func (r *Registry) CreateEvent(ctx context.Context, args commandArgs) (string, error) {
	if args.Event == nil {
		return "", fmt.Errorf("caldav_create_event requires an event")
	}
	client, err := r.calDAVClient(args)
	if err != nil {
		return "", err
	}
	return client.CreateEvent(ctx, args.CalendarID, args.Event)
}

// UpdateEvent PUTs an existing event
func (r *Registry) UpdateEvent(ctx context.Context, args commandArgs) error {
	if args.Event == nil {
		return fmt.Errorf("caldav_update_event requires an event")
	}
	client, err := r.calDAVClient(args)
	if err != nil {
		return err
	}
	return client.UpdateEvent(ctx, args.CalendarID, args.Event)
}

// DeleteEvent removes an event resource
func (r *Registry) DeleteEvent(ctx context.Context, args commandArgs) error {
	client, err := r.calDAVClient(args)
	if err != nil {
		return err
	}
	return client.DeleteEvent(ctx, args.CalendarID, args.EventID)
}

// ListContacts lists the address book
func (r *Registry) ListContacts(ctx context.Context, args commandArgs) ([]*carddav.Contact, error) {
	client, err := r.cardDAVClient(args)
	if err != nil {
		return nil, err
	}
	return client.ListContacts(ctx)
}

// SaveContact creates or updates a contact
func (r *Registry) SaveContact(ctx context.Context, args commandArgs) (*carddav.Contact, error) {
	if args.Contact == nil {
		return nil, fmt.Errorf("carddav_save_contact requires a contact")
	}
	client, err := r.cardDAVClient(args)
	if err != nil {
		return nil, err
	}
	return client.SaveContact(ctx, args.Contact)
}

// DeleteContact removes a contact resource
func (r *Registry) DeleteContact(ctx context.Context, args commandArgs) error {
	client, err := r.cardDAVClient(args)
	if err != nil {
		return err
	}
	return client.DeleteContact(ctx, args.ContactID)
}
