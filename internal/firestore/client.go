// Package firestore bootstraps the Firebase app used for request
// authentication and mirrors dashboard payloads into a Firestore collection.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Client wraps the Firestore and Auth clients of one Firebase project.
type Client struct {
	Firestore *firestore.Client
	Auth      *auth.Client
	projectID string
	log       zerolog.Logger
}

// NewClient initializes the Firebase app for projectID. credsFile, when set,
// replaces Application Default Credentials.
func NewClient(ctx context.Context, projectID, credsFile string, log zerolog.Logger) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		Auth:      authClient,
		projectID: projectID,
		log:       log.With().Str("component", "firebase").Str("project", projectID).Logger(),
	}, nil
}

// Close closes the Firestore client
func (c *Client) Close() error {
	return c.Firestore.Close()
}

// SetDocument writes data to collection/id, replacing any previous content.
func (c *Client) SetDocument(ctx context.Context, collection, id string, data any) error {
	_, err := c.Firestore.Collection(collection).Doc(id).Set(ctx, data)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// GetDocument reads collection/id into dst.
func (c *Client) GetDocument(ctx context.Context, collection, id string, dst any) error {
	doc, err := c.Firestore.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := doc.DataTo(dst); err != nil {
		return fmt.Errorf("failed to parse %s/%s: %w", collection, id, err)
	}
	return nil
}
