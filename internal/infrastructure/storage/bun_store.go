// Package storage persists flow, node, edge, trigger, and execution state
// (§6.4), grounded on the teacher's internal/infrastructure/storage —
// same uptrace/bun + pgdialect + pgdriver stack, rebuilt against the
// string-ID domain model and the flowengine.PersistenceCollaborator
// contract instead of the uuid-keyed event-sourced Execution.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/mbflowrt/flowengine/internal/domain"
	"github.com/mbflowrt/flowengine/internal/flowengine"
)

// BunStore is a Postgres-backed store for flows and executions.
type BunStore struct {
	db *bun.DB
}

// NewBunStore opens a connection pool against dsn using bun/pgdriver.
func NewBunStore(dsn string) *BunStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db}
}

// InitSchema creates the store's tables if they do not already exist.
func (s *BunStore) InitSchema(ctx context.Context) error {
	models := []interface{}{
		(*FlowModel)(nil),
		(*NodeModel)(nil),
		(*EdgeModel)(nil),
		(*TriggerModel)(nil),
		(*ExecutionModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *BunStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the underlying connection pool.
func (s *BunStore) Close() error { return s.db.DB.Close() }

// FlowModel is the persisted row for a domain.Flow's header fields; nodes/
// edges/triggers are stored in their own tables keyed by flow_id.
type FlowModel struct {
	bun.BaseModel `bun:"table:flows,alias:f"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Version   string    `bun:"version,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// NodeModel is the persisted row for a domain.Node.
type NodeModel struct {
	bun.BaseModel `bun:"table:nodes,alias:n"`

	ID      string `bun:"id,pk"`
	FlowID  string `bun:"flow_id,notnull"`
	Type    string `bun:"type,notnull"`
	Subtype string `bun:"subtype"`
	Name    string `bun:"name"`
	Config  []byte `bun:"config,type:jsonb"`
}

// EdgeModel is the persisted row for a domain.Edge.
type EdgeModel struct {
	bun.BaseModel `bun:"table:edges,alias:e"`

	ID        string `bun:"id,pk"`
	FlowID    string `bun:"flow_id,notnull"`
	FromID    string `bun:"from_id,notnull"`
	ToID      string `bun:"to_id,notnull"`
	Label     string `bun:"label"`
	Condition string `bun:"condition"`
}

// TriggerModel is the persisted row for a domain.Trigger.
type TriggerModel struct {
	bun.BaseModel `bun:"table:triggers,alias:t"`

	ID     string `bun:"id,pk"`
	FlowID string `bun:"flow_id,notnull"`
	Type   string `bun:"type,notnull"`
	Config []byte `bun:"config,type:jsonb"`
}

// ExecutionModel is the persisted row for flowengine.ExecutionRecord
// (§6.4): id, flow-id, owner, status, serialized trigger/input/outputs/
// node-results, error message, and timestamps.
type ExecutionModel struct {
	bun.BaseModel `bun:"table:executions,alias:x"`

	ID          string    `bun:"id,pk"`
	FlowID      string    `bun:"flow_id,notnull"`
	Owner       string    `bun:"owner"`
	Status      string    `bun:"status,notnull"`
	Trigger     []byte    `bun:"trigger,type:jsonb"`
	Input       []byte    `bun:"input,type:jsonb"`
	Outputs     []byte    `bun:"outputs,type:jsonb"`
	NodeResults []byte    `bun:"node_results,type:jsonb"`
	Error       string    `bun:"error"`
	StartedAt   time.Time `bun:"started_at,notnull"`
	FinishedAt  time.Time `bun:"finished_at,nullzero"`
}

// SaveFlow persists a flow's nodes, edges, and triggers, replacing any
// prior rows for the same flow ID.
func (s *BunStore) SaveFlow(ctx context.Context, f *domain.Flow) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&FlowModel{ID: f.ID(), Name: f.Name(), Version: f.Version()}).
			On("CONFLICT (id) DO UPDATE").Set("name = EXCLUDED.name, version = EXCLUDED.version").Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*NodeModel)(nil)).Where("flow_id = ?", f.ID()).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*EdgeModel)(nil)).Where("flow_id = ?", f.ID()).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*TriggerModel)(nil)).Where("flow_id = ?", f.ID()).Exec(ctx); err != nil {
			return err
		}
		for _, n := range f.Nodes() {
			raw, err := json.Marshal(n.Config())
			if err != nil {
				return err
			}
			row := &NodeModel{ID: n.ID(), FlowID: f.ID(), Type: n.Type(), Subtype: n.Subtype(), Name: n.Name(), Config: raw}
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return err
			}
		}
		for _, e := range f.Edges() {
			row := &EdgeModel{ID: e.ID(), FlowID: f.ID(), FromID: e.FromID(), ToID: e.ToID(), Label: e.Label(), Condition: e.Condition()}
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return err
			}
		}
		for _, t := range f.Triggers() {
			raw, err := json.Marshal(t.Config())
			if err != nil {
				return err
			}
			row := &TriggerModel{ID: t.ID(), FlowID: f.ID(), Type: t.Type(), Config: raw}
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadFlow reconstructs a domain.Flow from its persisted rows.
func (s *BunStore) LoadFlow(ctx context.Context, id string) (*domain.Flow, error) {
	var fm FlowModel
	if err := s.db.NewSelect().Model(&fm).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	var nodeRows []NodeModel
	if err := s.db.NewSelect().Model(&nodeRows).Where("flow_id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	var edgeRows []EdgeModel
	if err := s.db.NewSelect().Model(&edgeRows).Where("flow_id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	var triggerRows []TriggerModel
	if err := s.db.NewSelect().Model(&triggerRows).Where("flow_id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	b := domain.NewBuilder(fm.ID, fm.Name, fm.Version)
	for _, n := range nodeRows {
		var cfg map[string]any
		_ = json.Unmarshal(n.Config, &cfg)
		b.AddNode(domain.NewNode(n.ID, n.FlowID, n.Type, n.Subtype, n.Name, cfg))
	}
	for _, e := range edgeRows {
		b.AddEdge(domain.NewEdge(e.ID, e.FlowID, e.FromID, e.ToID, e.Label, e.Condition))
	}
	for _, t := range triggerRows {
		var cfg map[string]any
		_ = json.Unmarshal(t.Config, &cfg)
		b.AddTrigger(domain.NewTrigger(t.ID, t.FlowID, t.Type, cfg))
	}
	return b.Build()
}

// ListFlows returns every saved flow in full: it reads the header rows and
// then calls LoadFlow for each one to load its nodes, edges, and triggers.
func (s *BunStore) ListFlows(ctx context.Context) ([]*domain.Flow, error) {
	var rows []FlowModel
	if err := s.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Flow, 0, len(rows))
	for _, fm := range rows {
		f, err := s.LoadFlow(ctx, fm.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *BunStore) CreateExecution(ctx context.Context, rec flowengine.ExecutionRecord) error {
	model, err := toExecutionModel(rec)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(model).Exec(ctx)
	return err
}

func (s *BunStore) UpdateExecution(ctx context.Context, rec flowengine.ExecutionRecord) error {
	model, err := toExecutionModel(rec)
	if err != nil {
		return err
	}
	_, err = s.db.NewUpdate().Model(model).WherePK().OmitZero().Exec(ctx)
	return err
}

func (s *BunStore) GetExecution(ctx context.Context, id string) (*flowengine.ExecutionRecord, error) {
	var m ExecutionModel
	if err := s.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return fromExecutionModel(m), nil
}

func (s *BunStore) ListActive(ctx context.Context) ([]flowengine.ExecutionRecord, error) {
	var rows []ExecutionModel
	if err := s.db.NewSelect().Model(&rows).Where("status IN (?)", bun.In([]string{"pending", "running"})).Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]flowengine.ExecutionRecord, len(rows))
	for i, m := range rows {
		out[i] = *fromExecutionModel(m)
	}
	return out, nil
}

func toExecutionModel(rec flowengine.ExecutionRecord) (*ExecutionModel, error) {
	trigger, err := json.Marshal(rec.Trigger)
	if err != nil {
		return nil, err
	}
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return nil, err
	}
	outputs, err := json.Marshal(rec.Outputs)
	if err != nil {
		return nil, err
	}
	nodeResults, err := json.Marshal(rec.NodeResults)
	if err != nil {
		return nil, err
	}
	m := &ExecutionModel{
		ID: rec.ID, FlowID: rec.FlowID, Owner: rec.Owner, Status: rec.Status,
		Trigger: trigger, Input: input, Outputs: outputs, NodeResults: nodeResults, Error: rec.Error,
	}
	if rec.StartedAt > 0 {
		m.StartedAt = time.Unix(rec.StartedAt, 0)
	}
	if rec.FinishedAt > 0 {
		m.FinishedAt = time.Unix(rec.FinishedAt, 0)
	}
	return m, nil
}

func fromExecutionModel(m ExecutionModel) *flowengine.ExecutionRecord {
	rec := &flowengine.ExecutionRecord{ID: m.ID, FlowID: m.FlowID, Owner: m.Owner, Status: m.Status, Error: m.Error}
	_ = json.Unmarshal(m.Trigger, &rec.Trigger)
	_ = json.Unmarshal(m.Input, &rec.Input)
	_ = json.Unmarshal(m.Outputs, &rec.Outputs)
	_ = json.Unmarshal(m.NodeResults, &rec.NodeResults)
	rec.StartedAt = m.StartedAt.Unix()
	if !m.FinishedAt.IsZero() {
		rec.FinishedAt = m.FinishedAt.Unix()
	}
	return rec
}

var _ flowengine.PersistenceCollaborator = (*BunStore)(nil)
