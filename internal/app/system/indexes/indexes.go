// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"

	mutestore "trackbot/internal/app/store/mutestates"
	registrationstore "trackbot/internal/app/store/registrations"
	sentencestore "trackbot/internal/app/store/sentences"
	targetstore "trackbot/internal/app/store/targets"
)

/*
EnsureAll is called at startup. Each store's EnsureIndexes is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := registrationstore.New(db).EnsureIndexes(ctx); err != nil {
		problems = append(problems, "registrations: "+err.Error())
	}
	if err := mutestore.New(db).EnsureIndexes(ctx); err != nil {
		problems = append(problems, "muted_members: "+err.Error())
	}
	if err := targetstore.New(db).EnsureIndexes(ctx); err != nil {
		problems = append(problems, "targets: "+err.Error())
	}
	if err := sentencestore.New(db).EnsureIndexes(ctx); err != nil {
		problems = append(problems, "sentences: "+err.Error())
	}
	// group_settings holds a single fixed-_id document; no extra indexes.

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
