// Package mongo archives finished rounds and matches in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"domino/internal/config"
	"domino/internal/domain"
)

const (
	RoundsCollection  = "round_records"
	MatchesCollection = "matches"
)

// Archive implements ports.Archive.
type Archive struct {
	Cli     *mongo.Client
	Db      *mongo.Database
	timeout time.Duration
}

// Connect opens the client, pings the primary and makes sure the indexes exist.
func Connect(ctx context.Context, conf config.MongoConf) (*Archive, error) {
	timeout := time.Duration(conf.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(conf.Url)
	if conf.MinPoolSize > 0 {
		clientOptions.SetMinPoolSize(uint64(conf.MinPoolSize))
	}
	if conf.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(uint64(conf.MaxPoolSize))
	}
	if conf.Username != "" && conf.Password != "" {
		clientOptions.SetAuth(options.Credential{
			Username: conf.Username,
			Password: conf.Password,
		})
	}

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: mongo connect: %v", domain.ErrResourceUnavailable, err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: mongo ping: %v", domain.ErrResourceUnavailable, err)
	}

	a := &Archive{Cli: client, Db: client.Database(conf.Db), timeout: timeout}
	if err := a.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Archive) ensureIndexes(ctx context.Context) error {
	_, err := a.Db.Collection(RoundsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "match_id", Value: 1}, {Key: "round_number", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("%w: create round index: %v", domain.ErrResourceUnavailable, err)
	}
	return nil
}

func (a *Archive) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return a.Cli.Disconnect(ctx)
}

func (a *Archive) SaveRound(ctx context.Context, record *domain.RoundRecord) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	_, err := a.Db.Collection(RoundsCollection).ReplaceOne(ctx,
		bson.M{"_id": record.ID}, record, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: save round %s: %v", domain.ErrResourceUnavailable, record.ID, err)
	}
	return nil
}

func (a *Archive) SaveMatch(ctx context.Context, match *domain.Match) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	doc := toMatchDoc(match)
	_, err := a.Db.Collection(MatchesCollection).ReplaceOne(ctx,
		bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: save match %s: %v", domain.ErrResourceUnavailable, match.ID, err)
	}
	return nil
}

// FindMatch returns nil without error when the match was never archived.
func (a *Archive) FindMatch(ctx context.Context, matchID string) (*domain.MatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var doc matchDoc
	err := a.Db.Collection(MatchesCollection).FindOne(ctx, bson.M{"_id": matchID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find match %s: %v", domain.ErrResourceUnavailable, matchID, err)
	}
	res := doc.result()
	return &res, nil
}

// matchDoc is the stored form of a match.
type matchDoc struct {
	ID          string                `bson:"_id"`
	Players     []domain.Player       `bson:"players"`
	Teams       []string              `bson:"teams"`
	Scores      map[string]int        `bson:"scores"`
	TargetScore int                   `bson:"target_score"`
	Phase       domain.MatchPhase     `bson:"phase"`
	Winner      string                `bson:"winner,omitempty"`
	Rounds      []domain.RoundSummary `bson:"rounds"`
	CreatedAt   time.Time             `bson:"created_at"`
	FinishedAt  time.Time             `bson:"finished_at,omitempty"`
}

func toMatchDoc(m *domain.Match) matchDoc {
	return matchDoc{
		ID:          m.ID,
		Players:     m.Players,
		Teams:       m.Teams,
		Scores:      m.Scores,
		TargetScore: m.TargetScore,
		Phase:       m.Phase,
		Winner:      m.Winner,
		Rounds:      m.Rounds,
		CreatedAt:   m.CreatedAt,
		FinishedAt:  m.FinishedAt,
	}
}

func (d matchDoc) result() domain.MatchResult {
	return domain.MatchResult{
		MatchID: d.ID,
		Phase:   d.Phase,
		Winner:  d.Winner,
		Scores:  d.Scores,
		Rounds:  len(d.Rounds),
	}
}
