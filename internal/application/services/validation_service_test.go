package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

const lumbarDictation = "55 year old with low back pain radiating to the left leg for 6 weeks. " +
	"SSN 123-45-6789. Failed conservative therapy. Request MRI lumbar spine."

type validationFixture struct {
	db        *memDB
	gateway   *MockGateway
	templates *MockTemplates
	notifier  *recordingNotifier
	lifecycle *OrderLifecycleService
	svc       *ValidationService
}

func newValidationFixture() *validationFixture {
	f := &validationFixture{
		db:        newMemDB(),
		gateway:   new(MockGateway),
		templates: new(MockTemplates),
		notifier:  &recordingNotifier{},
	}
	f.templates.On("GetActive", mock.Anything).Return(defaultTemplate, nil)
	f.lifecycle = NewOrderLifecycleService(f.db, f.db, f.notifier, nil, 3)
	f.svc = NewValidationService(f.gateway, f.templates, nil, f.lifecycle, NewAttemptTracker(f.db), 500)
	return f
}

func (f *validationFixture) respond(contents ...string) {
	for _, c := range contents {
		f.gateway.On("Invoke", mock.Anything, mock.Anything).Return(invocation(c), nil).Once()
	}
}

func TestValidate_RequiresDictation(t *testing.T) {
	f := newValidationFixture()

	_, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: "  \n"})

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeMissingRequiredData, appErr.Type)
	assert.Equal(t, []string{"dictationText"}, appErr.Fields)
	f.gateway.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
}

func TestValidate_PromptNeverCarriesPHI(t *testing.T) {
	f := newValidationFixture()
	var prompt string
	f.gateway.On("Invoke", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompt = args.String(1) }).
		Return(invocation(appropriateJSON), nil)

	_, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: lumbarDictation})
	require.NoError(t, err)

	assert.NotContains(t, prompt, "123-45-6789")
	assert.Contains(t, prompt, "low back pain radiating")
	assert.NotContains(t, prompt, "IMPORTANT:")

	st := f.db.snapshot()
	require.Len(t, st.attempts, 1)
	assert.NotContains(t, st.attempts[0].InputText, "123-45-6789")
	for _, o := range st.orders {
		assert.Equal(t, lumbarDictation, o.DictationText)
	}
}

func TestValidate_OverridePromptInstruction(t *testing.T) {
	f := newValidationFixture()
	var prompt string
	f.gateway.On("Invoke", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompt = args.String(1) }).
		Return(invocation(appropriateJSON), nil)

	_, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{
		DictationText:        lumbarDictation,
		IsOverrideValidation: true,
	})

	require.NoError(t, err)
	assert.Contains(t, prompt, "IMPORTANT:")
}

// validate, finalize and send to radiology with complete records
func TestOrderIntake_AppropriatePath(t *testing.T) {
	f := newValidationFixture()
	ctx := context.Background()
	pid := completePatient(f.db)
	f.respond(appropriateJSON)

	resp, err := f.svc.Validate(ctx, physicianCaller, ValidateRequest{
		DictationText:           lumbarDictation,
		PatientInfo:             &entities.PatientInfo{ID: int64p(pid)},
		RadiologyOrganizationID: int64p(radiologyOrg),
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, entities.OrderStatusValidated, resp.OrderStatus)
	assert.Equal(t, 1, resp.AttemptNumber)
	assert.Equal(t, entities.ValidationStatusAppropriate, resp.ValidationResult.ValidationStatus)
	primary, ok := resp.ValidationResult.PrimaryICD10()
	require.True(t, ok)
	assert.Equal(t, "M54.5", primary.Code)
	assert.Equal(t, []string{"72148"}, resp.ValidationResult.CPTCodes())

	orderID := resp.OrderID
	req := finalizeRequest()
	final, err := f.lifecycle.Finalize(ctx, physicianCaller, orderID, req)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPendingAdmin, final.Status)

	sent, err := f.lifecycle.SendToRadiology(ctx, physicianCaller, orderID)
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPendingRadiology, sent.Status)

	var events []entities.OrderEventType
	for _, h := range f.db.historyFor(orderID) {
		events = append(events, h.EventType)
	}
	assert.Equal(t, []entities.OrderEventType{
		entities.OrderEventCreated,
		entities.OrderEventValidated,
		entities.OrderEventSigned,
		entities.OrderEventSentToRadiology,
	}, events)
	assert.Equal(t, events, f.notifier.types())

	st := f.db.snapshot()
	require.Len(t, st.usage, 1)
	assert.Equal(t, "success", st.usage[0].Status)
	require.NotNil(t, st.usage[0].OrderID)
	assert.Equal(t, orderID, *st.usage[0].OrderID)
}

// three failing validations unlock an override of the latest attempt
func TestOrderIntake_RepeatedFailuresThenOverride(t *testing.T) {
	f := newValidationFixture()
	ctx := context.Background()
	f.respond(failingJSON("needs_clarification"), failingJSON("inappropriate"), failingJSON("needs_clarification"))

	resp, err := f.svc.Validate(ctx, physicianCaller, ValidateRequest{DictationText: lumbarDictation})
	require.NoError(t, err)
	orderID := resp.OrderID
	assert.Equal(t, entities.OrderStatusValidationFailed, resp.OrderStatus)

	_, err = f.lifecycle.Override(ctx, physicianCaller, orderID, "history of known metastatic disease")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	for want := 2; want <= 3; want++ {
		resp, err = f.svc.Validate(ctx, physicianCaller, ValidateRequest{DictationText: lumbarDictation, OrderID: &orderID})
		require.NoError(t, err)
		assert.Equal(t, want, resp.AttemptNumber)
		assert.Equal(t, entities.OrderStatusValidationFailed, resp.OrderStatus)
	}

	res, err := f.lifecycle.Override(ctx, physicianCaller, orderID, "history of known metastatic disease")
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusValidated, res.Status)

	attempts := f.db.attemptsFor(orderID)
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.AttemptNumber)
	}
	assert.Equal(t, entities.ValidationStatusNeedsClarification, attempts[0].OutcomeStatus)
	assert.Equal(t, entities.ValidationStatusInappropriate, attempts[1].OutcomeStatus)
	assert.Equal(t, entities.ValidationStatusOverride, attempts[2].OutcomeStatus)

	order := f.db.snapshot().orders[orderID]
	assert.True(t, order.Overridden)
	assert.Equal(t, "history of known metastatic disease", order.OverrideJustification)
}

func TestValidate_AppropriateAfterFailureStaysFailed(t *testing.T) {
	f := newValidationFixture()
	ctx := context.Background()
	f.respond(failingJSON("inappropriate"), appropriateJSON)

	resp, err := f.svc.Validate(ctx, physicianCaller, ValidateRequest{DictationText: lumbarDictation})
	require.NoError(t, err)

	resp, err = f.svc.Validate(ctx, physicianCaller, ValidateRequest{DictationText: lumbarDictation, OrderID: &resp.OrderID})
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusValidationFailed, resp.OrderStatus)
	assert.Equal(t, 2, resp.AttemptNumber)

	history := f.db.historyFor(resp.OrderID)
	require.Len(t, history, 3)
	assert.Equal(t, entities.OrderEventValidationFailed, history[1].EventType)
	assert.Equal(t, entities.OrderEventRevalidated, history[2].EventType)
	assert.Equal(t, entities.OrderStatusValidationFailed, history[2].PreviousStatus)
	assert.Equal(t, entities.OrderStatusValidationFailed, history[2].NewStatus)
}

func TestValidate_ExistingOrderChecks(t *testing.T) {
	t.Run("other organization", func(t *testing.T) {
		f := newValidationFixture()
		id := f.db.seedOrder(entities.Order{ReferringOrganizationID: 555, Status: entities.OrderStatusDraft})

		_, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: lumbarDictation, OrderID: &id})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthorized))
		f.gateway.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
	})

	t.Run("already finalized", func(t *testing.T) {
		f := newValidationFixture()
		id := f.db.seedOrder(entities.Order{ReferringOrganizationID: referringOrg, Status: entities.OrderStatusPendingAdmin})

		_, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: lumbarDictation, OrderID: &id})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidState))
		f.gateway.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newValidationFixture()
		id := int64(4040)

		_, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: lumbarDictation, OrderID: &id})

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})
}

func TestValidate_CancelledDuringProviderCallWritesNothing(t *testing.T) {
	f := newValidationFixture()
	ctx, cancel := context.WithCancel(context.Background())
	f.gateway.On("Invoke", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(invocation(appropriateJSON), nil)

	_, err := f.svc.Validate(ctx, physicianCaller, ValidateRequest{DictationText: lumbarDictation})

	assert.ErrorIs(t, err, context.Canceled)
	st := f.db.snapshot()
	assert.Empty(t, st.orders)
	assert.Empty(t, st.attempts)
	assert.Empty(t, st.usage)
	assert.Empty(t, st.history)
	assert.Zero(t, f.db.commits)
}

func TestValidate_MalformedOutput(t *testing.T) {
	f := newValidationFixture()
	ctx := context.Background()
	f.respond(`I think this order looks fine.`, "```json\n{\"validationStatus\": \"maybe\"}\n```")

	for i := 0; i < 2; i++ {
		resp, err := f.svc.Validate(ctx, physicianCaller, ValidateRequest{DictationText: lumbarDictation})

		assert.Nil(t, resp)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeMalformedLLMOutput))
	}
	st := f.db.snapshot()
	assert.Empty(t, st.orders)
	assert.Empty(t, st.attempts)
	require.Len(t, st.usage, 2)
	assert.Nil(t, st.usage[0].OrderID)
	assert.Empty(t, f.notifier.types())
}

func TestValidate_MalformedOutputFailsExistingOrder(t *testing.T) {
	f := newValidationFixture()
	id := f.db.seedOrder(entities.Order{ReferringOrganizationID: referringOrg, Status: entities.OrderStatusDraft})
	f.respond(`I think this order looks fine.`)

	_, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: lumbarDictation, OrderID: &id})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeMalformedLLMOutput))
	st := f.db.snapshot()
	assert.Empty(t, st.attempts)
	assert.Equal(t, entities.OrderStatusValidationFailed, st.orders[id].Status)
	history := f.db.historyFor(id)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, entities.OrderEventValidationFailed, last.EventType)
	assert.Equal(t, entities.OrderStatusDraft, last.PreviousStatus)
	assert.Equal(t, entities.OrderStatusValidationFailed, last.NewStatus)
}

func TestValidate_AllProvidersExhausted(t *testing.T) {
	f := newValidationFixture()
	inv := &entities.Invocation{Calls: []entities.ProviderCall{
		{Provider: "anthropic", Err: errors.New("429 rate limited")},
		{Provider: "openai", Err: errors.New("timeout")},
	}}
	f.gateway.On("Invoke", mock.Anything, mock.Anything).
		Return(inv, apperrors.NewAllProvidersExhaustedError(errors.New("timeout")))

	_, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: lumbarDictation})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAllProvidersExhausted))
	assert.True(t, apperrors.Retryable(err))
	st := f.db.snapshot()
	assert.Empty(t, st.orders)
	assert.Empty(t, st.attempts)
	require.Len(t, st.usage, 2)
	assert.Equal(t, "error", st.usage[0].Status)
	assert.Equal(t, "429 rate limited", st.usage[0].ErrorMessage)
}

func TestValidate_TemplateMissing(t *testing.T) {
	f := newValidationFixture()
	f.templates = new(MockTemplates)
	f.templates.On("GetActive", mock.Anything).Return(nil, apperrors.NewNotFoundError("no active template"))
	f.svc = NewValidationService(f.gateway, f.templates, nil, f.lifecycle, NewAttemptTracker(f.db), 500)

	_, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: lumbarDictation})

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTemplateMissing))
	f.gateway.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
	assert.Empty(t, f.db.snapshot().orders)
}

func TestValidate_AttemptLogFailureIsSwallowed(t *testing.T) {
	f := newValidationFixture()
	f.respond(appropriateJSON)
	f.db.failAttempts = true

	resp, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: lumbarDictation})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Zero(t, resp.AttemptNumber)
	st := f.db.snapshot()
	assert.Empty(t, st.attempts)
	assert.Empty(t, st.usage)
	require.Len(t, st.orders, 1)
}

func TestValidate_Stateless(t *testing.T) {
	f := newValidationFixture()
	f.respond(appropriateJSON)

	resp, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: lumbarDictation, Stateless: true})

	require.NoError(t, err)
	assert.Zero(t, resp.OrderID)
	assert.Equal(t, 1, resp.AttemptNumber)
	st := f.db.snapshot()
	assert.Empty(t, st.orders)
	assert.Empty(t, st.history)
	require.Len(t, st.attempts, 1)
	assert.Nil(t, st.attempts[0].OrderID)
	require.Len(t, st.usage, 1)
	assert.Nil(t, st.usage[0].OrderID)
}

func TestValidate_WithoutLifecycleIsStateless(t *testing.T) {
	f := newValidationFixture()
	f.respond(appropriateJSON)
	svc := NewValidationService(f.gateway, f.templates, nil, nil, nil, 500)

	resp, err := svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: lumbarDictation})

	require.NoError(t, err)
	assert.Equal(t, entities.ValidationStatusAppropriate, resp.ValidationResult.ValidationStatus)
	assert.Empty(t, f.db.snapshot().orders)
}

func TestValidate_ConcurrentAttemptsAreNumberedWithoutGaps(t *testing.T) {
	f := newValidationFixture()
	f.gateway.On("Invoke", mock.Anything, mock.Anything).Return(invocation(appropriateJSON), nil)
	orderID := f.db.seedOrder(entities.Order{ReferringOrganizationID: referringOrg, Status: entities.OrderStatusDraft})

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Validate(context.Background(), physicianCaller, ValidateRequest{DictationText: lumbarDictation, OrderID: &orderID})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	attempts := f.db.attemptsFor(orderID)
	require.Len(t, attempts, n)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.AttemptNumber)
	}
}

type stubRetriever struct {
	context string
	err     error
}

func (s stubRetriever) Retrieve(ctx context.Context, keywords []string) (string, error) {
	return s.context, s.err
}

func TestPrompt_ReferenceContext(t *testing.T) {
	f := newValidationFixture()

	svc := NewValidationService(f.gateway, f.templates, stubRetriever{context: "ICD-10 M54.5: Low back pain"}, nil, nil, 500)
	prompt, err := svc.Prompt(context.Background(), lumbarDictation, false)
	require.NoError(t, err)
	assert.Contains(t, prompt, "ICD-10 M54.5: Low back pain")
	assert.NotContains(t, prompt, "123-45-6789")

	// retrieval failures degrade to a prompt without context
	svc = NewValidationService(f.gateway, f.templates, stubRetriever{err: fmt.Errorf("db down")}, nil, nil, 500)
	prompt, err = svc.Prompt(context.Background(), lumbarDictation, false)
	require.NoError(t, err)
	assert.NotContains(t, prompt, "ICD-10")
	assert.False(t, strings.Contains(prompt, "{{DATABASE_CONTEXT}}"))
}
