package assist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mediconnect-backend/pkg/config"
	apperrors "mediconnect-backend/pkg/errors"
)

type MockChatClient struct {
	mock.Mock
}

func (m *MockChatClient) Chat(ctx context.Context, messages []Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

func TestAsk_UsesModel(t *testing.T) {
	llm := new(MockChatClient)
	llm.On("Chat", mock.Anything, mock.MatchedBy(func(msgs []Message) bool {
		return len(msgs) == 2 &&
			msgs[0].Role == "system" && strings.Contains(msgs[0].Content, "first aid") &&
			msgs[1].Role == "user" && strings.Contains(msgs[1].Content, "I need first aid guidance for this situation: kitchen burn")
	})).Return("Cool it under running water.", nil)

	svc := NewService(llm, nil, time.Second)
	resp, err := svc.Ask(context.Background(), Request{Category: CategoryFirstAid, Text: "kitchen burn"})

	require.NoError(t, err)
	assert.False(t, resp.Fallback)
	assert.Equal(t, "Cool it under running water.", resp.Response)
	llm.AssertExpectations(t)
}

func TestAsk_FallsBackOnModelError(t *testing.T) {
	llm := new(MockChatClient)
	llm.On("Chat", mock.Anything, mock.Anything).Return("", errors.New("429 too many requests"))

	svc := NewService(llm, nil, time.Second)
	resp, err := svc.Ask(context.Background(), Request{Category: CategoryFirstAid, Text: "Kitchen burn"})

	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	assert.True(t, strings.HasPrefix(resp.Response, "For a Kitchen burn, follow these steps:"))
	assert.Equal(t, "For serious burns, seek immediate medical attention.", resp.Disclaimer)
}

func TestAsk_BreakerSkipsFailingModel(t *testing.T) {
	llm := new(MockChatClient)
	llm.On("Chat", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	svc := NewService(llm, nil, time.Second)
	for i := 0; i < 5; i++ {
		resp, err := svc.Ask(context.Background(), Request{Category: CategorySymptoms, Text: "fever and cough"})
		require.NoError(t, err)
		assert.True(t, resp.Fallback)
	}
	llm.AssertNumberOfCalls(t, "Chat", 3)
}

func TestAsk_StripsMarkup(t *testing.T) {
	llm := new(MockChatClient)
	llm.On("Chat", mock.Anything, mock.MatchedBy(func(msgs []Message) bool {
		return strings.HasSuffix(msgs[1].Content, "sore throat")
	})).Return("Gargle salt water.", nil)

	resp, err := NewService(llm, nil, time.Second).Ask(context.Background(),
		Request{Category: CategoryGeneral, Text: "<script>alert(1)</script><b>sore throat</b>\x00"})
	require.NoError(t, err)
	assert.Equal(t, "Gargle salt water.", resp.Response)
	llm.AssertExpectations(t)
}

func TestAsk_FallsBackOnEmptyCompletion(t *testing.T) {
	llm := new(MockChatClient)
	llm.On("Chat", mock.Anything, mock.Anything).Return("   ", nil)

	resp, err := NewService(llm, nil, 0).Ask(context.Background(), Request{Category: CategoryReport, Text: "LDL cholesterol 160"})
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
	assert.Contains(t, resp.Response, "lipid/cholesterol")
}

func TestAsk_Validation(t *testing.T) {
	svc := NewService(nil, nil, 0)

	_, err := svc.Ask(context.Background(), Request{Category: CategorySymptoms, Text: "  "})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingField))

	_, err = svc.Ask(context.Background(), Request{Category: "astrology", Text: "hi"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	_, err = svc.Ask(context.Background(), Request{Category: CategoryGeneral, Text: strings.Repeat("a", MaxTextLength+1)})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	resp, err := svc.Ask(context.Background(), Request{Text: "my knee"})
	require.NoError(t, err)
	assert.Equal(t, CategoryGeneral, resp.Category)
}

func TestFallbackTables(t *testing.T) {
	tests := []struct {
		name       string
		category   Category
		text       string
		wantPrefix string
		disclaimer string
	}{
		{"burn", CategoryFirstAid, "burn on arm", "For a burn on arm", "For serious burns"},
		{"bleeding", CategoryFirstAid, "Deep cut", "For Deep cut, follow", "For severe bleeding"},
		{"choking", CategoryFirstAid, "child choking", "For choking", "Call emergency services immediately if"},
		{"heimlich", CategoryFirstAid, "how to do the Heimlich", "For choking", "Call emergency services immediately if"},
		{"frostbite", CategoryFirstAid, "frostbite on toes", "For frostbite", "Always seek medical attention for frostbite"},
		{"first aid default", CategoryFirstAid, "bee sting", "For bee sting, follow these general", "This is general advice."},

		{"respiratory", CategorySymptoms, "Fever and cough", "Your symptoms (Fever and cough) might indicate", "This is not a diagnosis. Please"},
		{"fever with sore throat", CategorySymptoms, "fever, sore throat", "Your symptoms (fever, sore throat)", "This is not a diagnosis. Please"},
		{"cough without fever", CategorySymptoms, "dry cough", "Based on your symptoms (dry cough)", "This is not a diagnosis. Always"},
		{"headache", CategorySymptoms, "headache", "Your headache symptoms (headache)", "This information is not a diagnosis. Please consult a healthcare provider if headaches"},
		{"rash", CategorySymptoms, "itchy rash", "Your skin symptoms (itchy rash)", "This information is not a diagnosis. Please consult a healthcare provider for proper evaluation of skin"},
		{"symptoms default", CategorySymptoms, "tired", "Based on your symptoms (tired)", "This is not a diagnosis. Always"},

		{"lipid", CategoryReport, "lipid panel", "Regarding your lipid/cholesterol report", reportDisclaimer},
		{"a1c", CategoryReport, "A1C 6.1", "Regarding your blood glucose", reportDisclaimer},
		{"liver", CategoryReport, "liver enzymes", "Regarding your liver function tests", reportDisclaimer},
		{"report default", CategoryReport, "CBC numbers", "Regarding your health report", "This is general information. Always review"},

		{"general routes symptoms", CategoryGeneral, "pain in my headache", "Your headache symptoms", "This information is not a diagnosis."},
		{"general routes reports", CategoryGeneral, "my blood test", "Regarding your health report", "This is general information. Always review"},
		{"general routes first aid", CategoryGeneral, "burn", "For a burn", "For serious burns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, disclaimer := fallbackFor(tt.category, tt.text)
			assert.True(t, strings.HasPrefix(answer, tt.wantPrefix), "got %q", answer[:min(len(answer), 60)])
			assert.True(t, strings.HasPrefix(disclaimer, tt.disclaimer), "got %q", disclaimer)
		})
	}
}

func TestConversation_ModeIsExplicit(t *testing.T) {
	svc := NewService(nil, nil, 0)
	conv := svc.NewConversation()
	ctx := context.Background()

	assert.Equal(t, CategoryGeneral, conv.Mode())

	require.NoError(t, conv.SelectMode(CategoryReport))
	resp, err := conv.Send(ctx, "burn")
	require.NoError(t, err)
	assert.Equal(t, CategoryReport, resp.Category)
	assert.Contains(t, resp.Response, "Regarding your health report")

	// a question that reads like first aid stays in report mode
	resp, err = conv.Send(ctx, "burn injury")
	require.NoError(t, err)
	assert.Equal(t, CategoryReport, resp.Category)

	assert.Error(t, conv.SelectMode("tarot"))
	assert.Equal(t, CategoryReport, conv.Mode())

	history := conv.History()
	require.Len(t, history, 2)
	assert.Equal(t, "burn", history[0].Question)
	assert.Equal(t, CategoryReport, history[1].Mode)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" First-Aid ")
	require.NoError(t, err)
	assert.Equal(t, CategoryFirstAid, c)

	_, err = ParseCategory("nope")
	assert.Error(t, err)
}

func TestOpenAIClient_NilWithoutKey(t *testing.T) {
	assert.Nil(t, NewOpenAIClient(config.LLMConfig{}))

	var c *OpenAIClient
	_, err := c.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestOpenAIClient_CompatibleEndpoint(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Rest and fluids."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(config.LLMConfig{
		APIKey:    "test-key",
		BaseURL:   server.URL,
		Model:     "llama4-8b",
		MaxTokens: 256,
		Timeout:   5 * time.Second,
	})
	require.NotNil(t, client)

	answer, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "narrator", Content: "fever"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Rest and fluids.", answer)
	assert.Equal(t, "llama4-8b", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	// unknown roles are sent as user
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAIClient_UpstreamErrorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(config.LLMConfig{APIKey: "k", BaseURL: server.URL, Model: "m", Timeout: time.Second})
	resp, err := NewService(client, nil, time.Second).Ask(context.Background(), Request{Category: CategorySymptoms, Text: "headache"})
	require.NoError(t, err)
	assert.True(t, resp.Fallback)
}
