package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

// memState is the committed content of the in-memory database
type memState struct {
	orders    map[int64]entities.Order
	history   []entities.OrderHistory
	attempts  []entities.ValidationAttempt
	usage     []entities.LLMUsageLog
	patients  map[int64]entities.Patient
	insurance map[int64]entities.Insurance
	nextID    int64
}

func (s *memState) clone() *memState {
	c := &memState{
		orders:    make(map[int64]entities.Order, len(s.orders)),
		history:   append([]entities.OrderHistory(nil), s.history...),
		attempts:  append([]entities.ValidationAttempt(nil), s.attempts...),
		usage:     append([]entities.LLMUsageLog(nil), s.usage...),
		patients:  make(map[int64]entities.Patient, len(s.patients)),
		insurance: make(map[int64]entities.Insurance, len(s.insurance)),
		nextID:    s.nextID,
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.insurance {
		c.insurance[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// memDB serializes transactions with one mutex, which stands in for the
// order row lock, and discards the working copy on error
type memDB struct {
	mu    sync.Mutex
	state *memState

	// failHistory makes every history append fail
	failHistory bool
	// failAttempts makes attempt and usage inserts fail
	failAttempts bool
	commits      int
}

func newMemDB() *memDB {
	return &memDB{state: &memState{
		orders:    map[int64]entities.Order{},
		patients:  map[int64]entities.Patient{},
		insurance: map[int64]entities.Insurance{},
		nextID:    100,
	}}
}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, uow repositories.UnitOfWork) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	work := db.state.clone()
	if err := fn(ctx, &memUoW{db: db, st: work}); err != nil {
		if _, ok := apperrors.As(err); ok {
			return err
		}
		return apperrors.NewPersistenceError("transaction rolled back", err)
	}
	db.state = work
	db.commits++
	return nil
}

func (db *memDB) GetByID(ctx context.Context, id int64) (*entities.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.state.orders[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %d not found", id))
	}
	return &o, nil
}

func (db *memDB) snapshot() *memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.clone()
}

func (db *memDB) seedOrder(o entities.Order) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	if o.ID == 0 {
		o.ID = db.state.id()
	}
	db.state.orders[o.ID] = o
	return o.ID
}

func (db *memDB) seedPatient(p entities.Patient, ins *entities.Insurance) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	p.ID = db.state.id()
	db.state.patients[p.ID] = p
	if ins != nil {
		ins.ID = db.state.id()
		ins.PatientID = p.ID
		db.state.insurance[ins.ID] = *ins
	}
	return p.ID
}

func (db *memDB) seedAttempts(orderID int64, outcomes ...entities.ValidationStatus) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range outcomes {
		n := 1
		for _, a := range db.state.attempts {
			if a.OrderID != nil && *a.OrderID == orderID && a.AttemptNumber >= n {
				n = a.AttemptNumber + 1
			}
		}
		id := orderID
		db.state.attempts = append(db.state.attempts, entities.ValidationAttempt{
			ID: db.state.id(), OrderID: &id, AttemptNumber: n, OutcomeStatus: o,
		})
	}
}

func (db *memDB) attemptsFor(orderID int64) []entities.ValidationAttempt {
	st := db.snapshot()
	var out []entities.ValidationAttempt
	for _, a := range st.attempts {
		if a.OrderID != nil && *a.OrderID == orderID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out
}

func (db *memDB) historyFor(orderID int64) []entities.OrderHistory {
	st := db.snapshot()
	var out []entities.OrderHistory
	for _, h := range st.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out
}

type memUoW struct {
	db *memDB
	st *memState
}

func (u *memUoW) Orders() repositories.OrderStore { return memOrders{u} }
func (u *memUoW) History() repositories.OrderHistoryStore { return memHistory{u} }
func (u *memUoW) Attempts() repositories.AttemptStore { return memAttempts{u} }
func (u *memUoW) Patients() repositories.PatientStore { return memPatients{u} }

type memOrders struct{ u *memUoW }

func (m memOrders) Create(ctx context.Context, o *entities.Order) (int64, error) {
	c := *o
	c.ID = m.u.st.id()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.u.st.orders[c.ID] = c
	return c.ID, nil
}

func (m memOrders) LockByID(ctx context.Context, id int64) (*entities.Order, error) {
	o, ok := m.u.st.orders[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %d not found", id))
	}
	return &o, nil
}

func (m memOrders) Apply(ctx context.Context, id int64, p entities.OrderPatch) error {
	o, ok := m.u.st.orders[id]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("order %d not found", id))
	}
	if p.Status.Set {
		o.Status = p.Status.Value
	}
	if p.PatientID.Set {
		v := p.PatientID.Value
		o.PatientID = &v
	}
	if p.DictationText.Set {
		o.DictationText = p.DictationText.Value
	}
	if p.ClinicalIndication.Set {
		o.ClinicalIndication = p.ClinicalIndication.Value
	}
	if p.FinalCPTCode.Set {
		o.FinalCPTCode = p.FinalCPTCode.Value
	}
	if p.FinalCPTCodeDescription.Set {
		o.FinalCPTCodeDescription = p.FinalCPTCodeDescription.Value
	}
	if p.FinalICD10Codes.Set {
		o.FinalICD10Codes = p.FinalICD10Codes.Value
	}
	if p.FinalICD10Descriptions.Set {
		o.FinalICD10Descriptions = p.FinalICD10Descriptions.Value
	}
	if p.FinalValidationStatus.Set {
		o.FinalValidationStatus = p.FinalValidationStatus.Value
	}
	if p.FinalComplianceScore.Set {
		v := p.FinalComplianceScore.Value
		o.FinalComplianceScore = &v
	}
	if p.Overridden.Set {
		o.Overridden = p.Overridden.Value
	}
	if p.OverrideJustification.Set {
		o.OverrideJustification = p.OverrideJustification.Value
	}
	if p.IsUrgentOverride.Set {
		o.IsUrgentOverride = p.IsUrgentOverride.Value
	}
	if p.SignedByUserID.Set {
		v := p.SignedByUserID.Value
		o.SignedByUserID = &v
	}
	if p.SignatureDate.Set {
		v := p.SignatureDate.Value
		o.SignatureDate = &v
	}
	if p.SignatureFileKey.Set {
		o.SignatureFileKey = p.SignatureFileKey.Value
	}
	if p.UpdatedBy.Set {
		o.UpdatedBy = p.UpdatedBy.Value
	}
	o.UpdatedAt = time.Now()
	m.u.st.orders[id] = o
	return nil
}

type memHistory struct{ u *memUoW }

func (m memHistory) Append(ctx context.Context, e *entities.OrderHistory) error {
	if m.u.db.failHistory {
		return fmt.Errorf("history table unavailable")
	}
	e.ID = m.u.st.id()
	e.CreatedAt = time.Now()
	m.u.st.history = append(m.u.st.history, *e)
	return nil
}

func (m memHistory) ListByOrder(ctx context.Context, orderID int64) ([]*entities.OrderHistory, error) {
	var out []*entities.OrderHistory
	for i := range m.u.st.history {
		if m.u.st.history[i].OrderID == orderID {
			h := m.u.st.history[i]
			out = append(out, &h)
		}
	}
	return out, nil
}

type memAttempts struct{ u *memUoW }

func (m memAttempts) NextAttemptNumber(ctx context.Context, orderID int64) (int, error) {
	highest := 0
	for _, a := range m.u.st.attempts {
		if a.OrderID != nil && *a.OrderID == orderID && a.AttemptNumber > highest {
			highest = a.AttemptNumber
		}
	}
	return highest + 1, nil
}

func (m memAttempts) Insert(ctx context.Context, a *entities.ValidationAttempt) (int64, error) {
	if m.u.db.failAttempts {
		return 0, fmt.Errorf("attempts table unavailable")
	}
	a.ID = m.u.st.id()
	a.CreatedAt = time.Now()
	m.u.st.attempts = append(m.u.st.attempts, *a)
	return a.ID, nil
}

func (m memAttempts) ListByOrder(ctx context.Context, orderID int64) ([]*entities.ValidationAttempt, error) {
	var out []*entities.ValidationAttempt
	for i := range m.u.st.attempts {
		a := m.u.st.attempts[i]
		if a.OrderID != nil && *a.OrderID == orderID {
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (m memAttempts) SetOutcome(ctx context.Context, attemptID int64, outcome entities.ValidationStatus) error {
	for i := range m.u.st.attempts {
		if m.u.st.attempts[i].ID == attemptID {
			m.u.st.attempts[i].OutcomeStatus = outcome
			return nil
		}
	}
	return apperrors.NewNotFoundError("attempt not found")
}

func (m memAttempts) InsertUsage(ctx context.Context, u *entities.LLMUsageLog) error {
	if m.u.db.failAttempts {
		return fmt.Errorf("usage table unavailable")
	}
	u.ID = m.u.st.id()
	m.u.st.usage = append(m.u.st.usage, *u)
	return nil
}

type memPatients struct{ u *memUoW }

func (m memPatients) GetByID(ctx context.Context, id int64) (*entities.Patient, error) {
	p, ok := m.u.st.patients[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("patient %d not found", id))
	}
	return &p, nil
}

func (m memPatients) PrimaryInsurance(ctx context.Context, patientID int64) (*entities.Insurance, error) {
	for _, ins := range m.u.st.insurance {
		if ins.PatientID == patientID && ins.IsPrimary {
			c := ins
			return &c, nil
		}
	}
	return nil, nil
}

func (m memPatients) CreateTemporary(ctx context.Context, orgID int64, info entities.PatientInfo) (int64, error) {
	id := m.u.st.id()
	m.u.st.patients[id] = entities.Patient{
		ID:             id,
		OrganizationID: orgID,
		FirstName:      info.FirstName,
		LastName:       info.LastName,
		DateOfBirth:    info.DateOfBirth,
		PhoneNumber:    info.PhoneNumber,
		IsTemporary:    true,
	}
	return id, nil
}

// MockGateway is a testify mock of providers.LLMGateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Invoke(ctx context.Context, prompt string) (*entities.Invocation, error) {
	args := m.Called(ctx, prompt)
	inv, _ := args.Get(0).(*entities.Invocation)
	return inv, args.Error(1)
}

// MockTemplates is a testify mock of repositories.TemplateRepository
type MockTemplates struct {
	mock.Mock
}

func (m *MockTemplates) GetActive(ctx context.Context) (*entities.PromptTemplate, error) {
	args := m.Called(ctx)
	tmpl, _ := args.Get(0).(*entities.PromptTemplate)
	return tmpl, args.Error(1)
}

// MockUploads is a testify mock of providers.FileUploadService
type MockUploads struct {
	mock.Mock
}

func (m *MockUploads) ProcessSignature(ctx context.Context, orderID int64, userID int64, data string) (string, error) {
	args := m.Called(ctx, orderID, userID, data)
	return args.String(0), args.Error(1)
}

// recordingNotifier keeps every event it is handed
type recordingNotifier struct {
	mu     sync.Mutex
	events []entities.OrderEvent
}

func (n *recordingNotifier) NotifyOrderEvent(ctx context.Context, e entities.OrderEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types() []entities.OrderEventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]entities.OrderEventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.EventType)
	}
	return out
}

func invocation(content string) *entities.Invocation {
	return &entities.Invocation{
		Response: &entities.LLMResponse{Provider: "anthropic", Model: "claude", Content: content, TotalTokens: 120},
		Calls:    []entities.ProviderCall{{Provider: "anthropic", Model: "claude", TotalTokens: 120, LatencyMs: 40}},
	}
}

const appropriateJSON = `{"validationStatus":"appropriate","complianceScore":88,
 "feedback":"Imaging is appropriate for radicular low back pain.",
 "suggestedICD10Codes":[{"code":"M54.5","description":"Low back pain","isPrimary":true},
                        {"code":"M51.36","description":"Disc degeneration, lumbar","isPrimary":false}],
 "suggestedCPTCodes":[{"code":"72148","description":"MRI lumbar spine without contrast"}]}`

func failingJSON(status string) string {
	return `{"validationStatus":"` + status + `","complianceScore":35,"feedback":"Insufficient history.",
 "suggestedICD10Codes":[{"code":"M54.5","description":"Low back pain","isPrimary":true}],
 "suggestedCPTCodes":[{"code":"72148","description":"MRI lumbar spine without contrast"}]}`
}

var defaultTemplate = &entities.PromptTemplate{
	ID: 1, Name: "default", Version: 1, Active: true,
	Content: "Validate this radiology order.\n{{DATABASE_CONTEXT}}\nDictation: {{DICTATION_TEXT}}",
}
