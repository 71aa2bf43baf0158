package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const systemPrompt = `You label machine learning research papers.
Answer with exactly one category name copied verbatim from the list in the request.
Do not add explanations, punctuation or formatting.`

// VertexService calls a Gemini model on Vertex AI.
type VertexService struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewVertexService creates a client bound to one generative model.
func NewVertexService(ctx context.Context, projectID, region, modelName string) (*VertexService, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexService: projectID and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	return &VertexService{client: client, model: model}, nil
}

// Classify sends prompt and tags the result.
func (v *VertexService) Classify(ctx context.Context, prompt string) Outcome {
	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return classifyError(err)
	}
	text := responseText(resp)
	if text == "" {
		return Failed(errors.New("empty response from model"))
	}
	return OK(text)
}

// Close releases the underlying client.
func (v *VertexService) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

// classifyError separates quota exhaustion from every other failure.
func classifyError(err error) Outcome {
	if status.Code(err) == codes.ResourceExhausted {
		return RateLimited(err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return RateLimited(err)
	}
	return Failed(err)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
