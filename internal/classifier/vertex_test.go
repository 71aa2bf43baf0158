package classifier

import (
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want OutcomeKind
	}{
		{"grpc resource exhausted", status.Error(codes.ResourceExhausted, "quota"), OutcomeRateLimited},
		{"googleapi 429", fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 429}), OutcomeRateLimited},
		{"grpc internal", status.Error(codes.Internal, "boom"), OutcomeServiceFailed},
		{"googleapi 500", &googleapi.Error{Code: 500}, OutcomeServiceFailed},
		{"plain error mentioning 429", errors.New("status 429"), OutcomeServiceFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, classifyError(tt.err).Kind)
		})
	}
}

func TestResponseText(t *testing.T) {
	t.Parallel()

	assert.Empty(t, responseText(nil))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(" Deep "), genai.Text("Learning\n")}},
		}},
	}
	assert.Equal(t, "Deep Learning", responseText(resp))
}
