package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

func TestJobStore_PutPendingPersistsDefaults(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "conversation_jobs", logging.Discard())

	job := &JobRecord{
		JobID:       "job-123",
		RequestType: jobTypeInbound,
		ClinicID:    clinicA,
		Phone:       phoneAna,
	}

	if err := store.PutPending(context.Background(), job); err != nil {
		t.Fatalf("PutPending returned error: %v", err)
	}

	if mock.putInput == nil {
		t.Fatalf("expected PutItem to be called")
	}

	var stored JobRecord
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored job: %v", err)
	}

	if stored.Status != JobStatusPending {
		t.Fatalf("expected status pending, got %s", stored.Status)
	}
	if stored.ClinicID != clinicA || stored.Phone != phoneAna {
		t.Fatalf("expected routing fields to persist, got %#v", stored)
	}
	if stored.CreatedAt == "" || stored.UpdatedAt == "" {
		t.Fatal("expected timestamps to be populated")
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL to be in the future")
	}

	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(jobId)" {
		t.Fatalf("expected condition expression to prevent overwrites, got %v", expr)
	}
}

func TestJobStore_PutPendingNilJob(t *testing.T) {
	store := NewJobStore(&mockDynamo{}, "conversation_jobs", logging.Discard())
	if err := store.PutPending(context.Background(), nil); err == nil {
		t.Fatal("expected error when job is nil")
	}
}

func TestJobStore_MarkCompleted_UsesReservedAttributeNames(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "conversation_jobs", logging.Discard())

	result := &TurnResult{Reply: "See you Monday", Outcome: OutcomeReplied, Invocations: 1}
	if err := store.MarkCompleted(context.Background(), "job-123", result); err != nil {
		t.Fatalf("MarkCompleted returned error: %v", err)
	}

	if len(mock.updateInputs) != 1 {
		t.Fatalf("expected 1 update call, got %d", len(mock.updateInputs))
	}
	update := mock.updateInputs[0]

	names := update.ExpressionAttributeNames
	if names["#result"] != "result" || names["#error"] != "errorMessage" || names["#status"] != "status" {
		t.Fatalf("expected reserved attribute names to be aliased, got %v", names)
	}

	values := update.ExpressionAttributeValues
	status := values[":status"].(*types.AttributeValueMemberS).Value
	if status != string(JobStatusCompleted) {
		t.Fatalf("expected completed status, got %s", status)
	}
	if _, ok := values[":result"].(*types.AttributeValueMemberM); !ok {
		t.Fatalf("expected marshalled result attribute, got %T", values[":result"])
	}
	if expr := update.ConditionExpression; expr == nil || *expr != "attribute_exists(jobId)" {
		t.Fatalf("expected update to require an existing job, got %v", expr)
	}
}

func TestJobStore_MarkFailed_SetsNullResult(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "conversation_jobs", logging.Discard())

	if err := store.MarkFailed(context.Background(), "job-123", "boom"); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}

	update := mock.updateInputs[0]
	if _, ok := update.ExpressionAttributeValues[":result"].(*types.AttributeValueMemberNULL); !ok {
		t.Fatalf("expected result to be set to NULL, got %T", update.ExpressionAttributeValues[":result"])
	}
	if msg := update.ExpressionAttributeValues[":error"].(*types.AttributeValueMemberS).Value; msg != "boom" {
		t.Fatalf("expected error message, got %q", msg)
	}
}

func TestJobStore_MarkCompleted_PropagatesError(t *testing.T) {
	mock := &mockDynamo{updateErr: errors.New("dynamo failed")}
	store := NewJobStore(mock, "conversation_jobs", logging.Discard())

	err := store.MarkCompleted(context.Background(), "job-1", &TurnResult{})
	if err == nil || !strings.Contains(err.Error(), "dynamo failed") {
		t.Fatalf("expected dynamo error, got %v", err)
	}
}

func TestJobStore_GetJob_Success(t *testing.T) {
	mock := &mockDynamo{
		getOutput: &dynamodb.GetItemOutput{
			Item: map[string]types.AttributeValue{
				"jobId":    &types.AttributeValueMemberS{Value: "job-42"},
				"status":   &types.AttributeValueMemberS{Value: string(JobStatusPending)},
				"clinicId": &types.AttributeValueMemberS{Value: clinicA},
			},
		},
	}
	store := NewJobStore(mock, "conversation_jobs", logging.Discard())

	job, err := store.GetJob(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if job.JobID != "job-42" || job.Status != JobStatusPending || job.ClinicID != clinicA {
		t.Fatalf("unexpected job result: %#v", job)
	}
}

func TestJobStore_GetJob_NotFound(t *testing.T) {
	mock := &mockDynamo{getOutput: &dynamodb.GetItemOutput{}}
	store := NewJobStore(mock, "conversation_jobs", logging.Discard())

	_, err := store.GetJob(context.Background(), "job-42")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStore_GetJob_EmptyID(t *testing.T) {
	store := NewJobStore(&mockDynamo{}, "conversation_jobs", logging.Discard())
	if _, err := store.GetJob(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty jobID")
	}
}

func TestMemoryJobStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryJobStore()

	if err := store.PutPending(ctx, &JobRecord{JobID: "job-1", ClinicID: clinicA}); err != nil {
		t.Fatalf("PutPending: %v", err)
	}
	if err := store.PutPending(ctx, &JobRecord{JobID: "job-1", ClinicID: clinicA}); err == nil {
		t.Fatal("expected duplicate job id to be rejected")
	}

	if err := store.MarkCompleted(ctx, "job-1", &TurnResult{Reply: "ok", Outcome: OutcomeReplied}); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	job, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != JobStatusCompleted || job.Result == nil || job.Result.Reply != "ok" {
		t.Fatalf("unexpected job: %#v", job)
	}

	if err := store.MarkFailed(ctx, "job-1", "later failure"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	job, _ = store.GetJob(ctx, "job-1")
	if job.Status != JobStatusFailed || job.Result != nil || job.ErrorMessage != "later failure" {
		t.Fatalf("unexpected job after failure: %#v", job)
	}

	if err := store.MarkFailed(ctx, "missing", "x"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	putErr       error
	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error
	getOutput    *dynamodb.GetItemOutput
	getErr       error
}

func (m *mockDynamo) PutItem(ctx context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = input
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamo) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, input)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}
