package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

type semanticFactRow struct {
	bun.BaseModel `bun:"table:semantic_facts"`

	Subject    string    `bun:"subject,pk"`
	Predicate  string    `bun:"predicate,pk"`
	Object     string    `bun:"object,notnull"`
	Confidence float64   `bun:"confidence,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

type episodeRow struct {
	bun.BaseModel `bun:"table:episodes"`

	ID             string    `bun:"id,pk"`
	ConversationID string    `bun:"conversation_id,notnull"`
	TurnIndex      int       `bun:"turn_index,notnull"`
	Payload        []byte    `bun:"payload,type:jsonb,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

type procedureRuleRow struct {
	bun.BaseModel `bun:"table:procedure_rules"`

	ID        string    `bun:"id,pk"`
	Trigger   []byte    `bun:"trigger,type:jsonb,notnull"`
	Channel   string    `bun:"channel,notnull"`
	Weight    float64   `bun:"weight,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// BunStore mirrors the engine's three collections into Postgres.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(dsn string) (*BunStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &BunStore{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

// Init creates the three tables when missing.
func (s *BunStore) Init(ctx context.Context) error {
	models := []any{
		(*semanticFactRow)(nil),
		(*episodeRow)(nil),
		(*procedureRuleRow)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	return nil
}

func (s *BunStore) LoadAll(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	var factRows []semanticFactRow
	if err := s.db.NewSelect().Model(&factRows).Scan(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load semantic facts: %w", err)
	}
	for _, r := range factRows {
		snap.Facts = append(snap.Facts, Fact{
			Subject:    r.Subject,
			Predicate:  r.Predicate,
			Object:     r.Object,
			Confidence: r.Confidence,
			UpdatedAt:  r.UpdatedAt,
		})
	}

	var epRows []episodeRow
	if err := s.db.NewSelect().Model(&epRows).
		Order("conversation_id ASC", "turn_index ASC").
		Scan(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load episodes: %w", err)
	}
	for _, r := range epRows {
		var rec EpisodeRecord
		if err := json.Unmarshal(r.Payload, &rec); err != nil {
			return Snapshot{}, fmt.Errorf("decode episode %s: %w", r.ID, err)
		}
		snap.Episodes = append(snap.Episodes, rec)
	}

	var ruleRows []procedureRuleRow
	if err := s.db.NewSelect().Model(&ruleRows).Scan(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load procedure rules: %w", err)
	}
	for _, r := range ruleRows {
		var trig Trigger
		if err := json.Unmarshal(r.Trigger, &trig); err != nil {
			return Snapshot{}, fmt.Errorf("decode rule %s: %w", r.ID, err)
		}
		snap.Rules = append(snap.Rules, ProcedureRule{
			ID:        r.ID,
			Trigger:   trig,
			Channel:   contractx.NotifyChannel(r.Channel),
			Weight:    r.Weight,
			UpdatedAt: r.UpdatedAt,
		})
	}

	return snap, nil
}

// SaveTurn writes everything inside one transaction.
func (s *BunStore) SaveTurn(ctx context.Context, facts []Fact, episode *EpisodeRecord, rule *ProcedureRule) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, f := range facts {
			row := semanticFactRow{
				Subject:    f.Subject,
				Predicate:  f.Predicate,
				Object:     f.Object,
				Confidence: f.Confidence,
				UpdatedAt:  f.UpdatedAt,
			}
			if _, err := tx.NewInsert().Model(&row).
				On("CONFLICT (subject, predicate) DO UPDATE").
				Set("object = EXCLUDED.object").
				Set("confidence = EXCLUDED.confidence").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx); err != nil {
				return fmt.Errorf("upsert fact %s/%s: %w", f.Subject, f.Predicate, err)
			}
		}

		if episode != nil {
			payload, err := json.Marshal(episode)
			if err != nil {
				return fmt.Errorf("encode episode: %w", err)
			}
			row := episodeRow{
				ID:             episode.ID,
				ConversationID: episode.ConversationID,
				TurnIndex:      episode.TurnIndex,
				Payload:        payload,
				CreatedAt:      episode.CreatedAt,
			}
			if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
				return fmt.Errorf("insert episode %s: %w", episode.ID, err)
			}
		}

		if rule != nil {
			trig, err := json.Marshal(rule.Trigger)
			if err != nil {
				return fmt.Errorf("encode trigger: %w", err)
			}
			row := procedureRuleRow{
				ID:        rule.ID,
				Trigger:   trig,
				Channel:   string(rule.Channel),
				Weight:    rule.Weight,
				UpdatedAt: rule.UpdatedAt,
			}
			if _, err := tx.NewInsert().Model(&row).
				On("CONFLICT (id) DO UPDATE").
				Set("weight = EXCLUDED.weight").
				Set("updated_at = EXCLUDED.updated_at").
				Exec(ctx); err != nil {
				return fmt.Errorf("upsert rule %s: %w", rule.ID, err)
			}
		}

		return nil
	})
}

func (s *BunStore) PruneEpisodes(ctx context.Context, cutoff time.Time) error {
	if _, err := s.db.NewDelete().
		Model((*episodeRow)(nil)).
		Where("created_at < ?", cutoff).
		Exec(ctx); err != nil {
		return fmt.Errorf("prune episodes: %w", err)
	}
	return nil
}
