package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/persona-rag-backend/internal/chain"
	"github.com/tbourn/persona-rag-backend/internal/domain"
	"github.com/tbourn/persona-rag-backend/internal/history"
	"github.com/tbourn/persona-rag-backend/internal/loader"
	"github.com/tbourn/persona-rag-backend/internal/repo"
	"github.com/tbourn/persona-rag-backend/internal/search"
	"github.com/tbourn/persona-rag-backend/internal/vectorindex"
)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

// contextModel answers with the retrieved context it finds in the system
// prompt, so replies are grounded in whatever the retriever returned.
type contextModel struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *contextModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	sys := in[0].Content
	if i := strings.LastIndex(sys, "----------------\n"); i >= 0 {
		sys = strings.TrimSpace(sys[i+len("----------------\n"):])
	}
	if sys == "" {
		return schema.AssistantMessage("I don't know.", nil), nil
	}
	return schema.AssistantMessage("From my notes: "+sys, nil), nil
}

func (m *contextModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

// stack is a fully wired set of services over one in-memory database.
type stack struct {
	db       *gorm.DB
	docsRoot string
	index    *vectorindex.Manager
	personas *PersonaService
	docs     *DocumentService
	turns    *TurnService
	engine   *ConversationEngine
	model    *contextModel
}

func newStack(t *testing.T) *stack {
	t.Helper()
	base := t.TempDir()
	db := newDB(t)
	docsRoot := filepath.Join(base, "docs")
	l := loader.New(docsRoot, loader.ChunkConfig{Size: 400}, zerolog.Nop())
	idx := vectorindex.New(l, search.NewHashEmbedder(search.WithDim(256)), vectorindex.Options{
		IndexRoot:    filepath.Join(base, "index"),
		EmbedderName: "local:256",
	}, zerolog.Nop())
	t.Cleanup(func() { _ = idx.Close() })

	m := &contextModel{}
	ch, err := chain.New(context.Background(), m, time.Second)
	if err != nil {
		t.Fatalf("chain.New: %v", err)
	}
	return &stack{
		db:       db,
		docsRoot: docsRoot,
		index:    idx,
		personas: NewPersonaService(db),
		docs:     NewDocumentService(db, idx, 1<<20),
		turns:    NewTurnService(db),
		model:    m,
		engine: &ConversationEngine{
			DB:             db,
			Index:          idx,
			History:        history.New(db, nil, zerolog.Nop()),
			Chain:          ch,
			Log:            zerolog.Nop(),
			TopK:           1,
			MaxPairs:       20,
			MaxPromptRunes: 4000,
		},
	}
}

func (s *stack) persona(t *testing.T, name string) *domain.Persona {
	t.Helper()
	p, err := s.personas.Create(context.Background(), CreatePersonaInput{Name: name})
	if err != nil {
		t.Fatalf("Create(%q): %v", name, err)
	}
	return p
}

func (s *stack) upload(t *testing.T, personaID uint, name, content string) *domain.Document {
	t.Helper()
	d, err := s.docs.Upload(context.Background(), UploadInput{PersonaID: personaID, Filename: name, Content: []byte(content)})
	if err != nil {
		t.Fatalf("Upload(%s): %v", name, err)
	}
	return d
}

func countTurns(t *testing.T, db *gorm.DB, origin string) int64 {
	t.Helper()
	var n int64
	q := db.Model(&domain.Turn{})
	if origin != "" {
		q = q.Where("origin = ?", origin)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count turns: %v", err)
	}
	return n
}
