package storage

import (
	"context"
	"fmt"
	"path"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"

	"aquacare-relay/internal/data"
)

// OpenFirebase initialises a Firebase app from a service account JSON document.
func OpenFirebase(ctx context.Context, databaseURL, credentialsJSON string) (*firebase.App, error) {
	app, err := firebase.NewApp(ctx,
		&firebase.Config{DatabaseURL: databaseURL},
		option.WithCredentialsJSON([]byte(credentialsJSON)),
	)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}

// FirebaseStore reads thresholds from <thresholdsPath>/<Metric> and writes
// readings to sensorsPath in the Realtime Database.
type FirebaseStore struct {
	client         *db.Client
	thresholdsPath string
	sensorsPath    string
}

func NewFirebaseStore(ctx context.Context, app *firebase.App, thresholdsPath, sensorsPath string) (*FirebaseStore, error) {
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("init realtime database client: %w", err)
	}
	return &FirebaseStore{
		client:         client,
		thresholdsPath: thresholdsPath,
		sensorsPath:    sensorsPath,
	}, nil
}

func (s *FirebaseStore) thresholdRef(metric data.Metric) *db.Ref {
	return s.client.NewRef(thresholdPath(s.thresholdsPath, metric))
}

func (s *FirebaseStore) Bounds(ctx context.Context, metric data.Metric) (data.Bounds, bool, error) {
	var rec *boundsRecord
	if err := s.thresholdRef(metric).Get(ctx, &rec); err != nil {
		return data.Bounds{}, false, fmt.Errorf("get %s thresholds: %w", metric, err)
	}
	return rec.toBounds()
}

func (s *FirebaseStore) SetBounds(ctx context.Context, metric data.Metric, b data.Bounds) error {
	if err := s.thresholdRef(metric).Set(ctx, b); err != nil {
		return fmt.Errorf("set %s thresholds: %w", metric, err)
	}
	return nil
}

func (s *FirebaseStore) Update(ctx context.Context, fields map[string]interface{}) error {
	if err := s.client.NewRef(s.sensorsPath).Update(ctx, fields); err != nil {
		return fmt.Errorf("update %s: %w", s.sensorsPath, err)
	}
	return nil
}

func (s *FirebaseStore) Latest(ctx context.Context) (map[string]interface{}, error) {
	var latest map[string]interface{}
	if err := s.client.NewRef(s.sensorsPath).Get(ctx, &latest); err != nil {
		return nil, fmt.Errorf("get %s: %w", s.sensorsPath, err)
	}
	if latest == nil {
		latest = map[string]interface{}{}
	}
	return latest, nil
}

func thresholdPath(base string, metric data.Metric) string {
	return path.Join(base, string(metric))
}
