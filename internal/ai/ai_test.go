package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpenMCP-Salesforce/internal/knowledge"
	"OpenMCP-Salesforce/internal/llm"
	"OpenMCP-Salesforce/internal/registry"
)

type stubLLM struct {
	mu    sync.Mutex
	text  string
	err   error
	wait  time.Duration
	calls []llm.Request
}

func (s *stubLLM) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Text: s.text}, nil
}

func TestClassifyExactMatch(t *testing.T) {
	ops := registry.Builtin().List()

	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{name: "bare name", answer: "list_salesforce_objects", want: registry.OpListObjects},
		{name: "padded", answer: "\n  query_salesforce_records \n", want: registry.OpQueryRecords},
		{name: "trailing words", answer: "describe_salesforce_object because the user asks about fields", want: registry.OpDescribeObject},
		{name: "quoted", answer: "'list_salesforce_objects'", want: registry.OpListObjects},
		{name: "explicit failback", answer: "failback", want: Failback},
		{name: "case differs", answer: "List_Salesforce_Objects", want: Failback},
		{name: "substring", answer: "list_salesforce", want: Failback},
		{name: "superstring", answer: "list_salesforce_objects_v2", want: Failback},
		{name: "name not first", answer: "I would use list_salesforce_objects", want: Failback},
		{name: "empty", answer: "   ", want: Failback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&stubLLM{text: tt.answer})
			assert.Equal(t, tt.want, c.Classify(context.Background(), "prompt", ops))
		})
	}
}

func TestClassifyPromptListsOperations(t *testing.T) {
	stub := &stubLLM{text: "failback"}
	c := NewClassifier(stub)
	c.Classify(context.Background(), "list all objects", registry.Builtin().List())

	require.Len(t, stub.calls, 1)
	req := stub.calls[0]
	assert.Equal(t, llm.PurposeClassify, req.Purpose)
	assert.Contains(t, req.Prompt, "User request: list all objects\n")
	assert.Contains(t, req.Prompt, "- describe_salesforce_object: Provides schema details")
	assert.True(t, strings.HasSuffix(req.Prompt, "or 'failback'."))
}

func TestClassifyFailbackWithoutCalling(t *testing.T) {
	stub := &stubLLM{text: "list_salesforce_objects"}
	c := NewClassifier(stub)

	assert.Equal(t, Failback, c.Classify(context.Background(), "anything", nil))
	assert.Empty(t, stub.calls)

	assert.Equal(t, Failback, NewClassifier(nil).Classify(context.Background(), "anything", registry.Builtin().List()))
}

func TestClassifyErrorsBecomeFailback(t *testing.T) {
	ops := registry.Builtin().List()

	c := NewClassifier(&stubLLM{err: errors.New("network down")})
	assert.Equal(t, Failback, c.Classify(context.Background(), "list", ops))

	slow := NewClassifier(&stubLLM{text: "list_salesforce_objects", wait: 200 * time.Millisecond},
		WithTimeout(10*time.Millisecond))
	assert.Equal(t, Failback, slow.Classify(context.Background(), "list", ops))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT Id FROM Account WHERE Name = 'Acme'", "SELECT Id FROM Account WHERE Name = 'Acme'"},
		{"```soql\nSELECT Id FROM Account\n```", "SELECT Id FROM Account"},
		{"sql\nSELECT Name FROM Contact", "SELECT Name FROM Contact"},
		{"SOQL  \n SELECT Name FROM Contact", "SELECT Name FROM Contact"},
		{"soql\nsql\nSELECT Id FROM Case", "SELECT Id FROM Case"},
		{"`sql`\nSELECT Id FROM Case", "SELECT Id FROM Case"},
		{"SELECT Id FROM Account WHERE CreatedDate > LAST_N_DAYS:30", "SELECT Id FROM Account WHERE CreatedDate > LAST_N_DAYS30"},
		{"  **Account**  ", "**Account**"},
		{"SELECT COUNT() FROM Account WHERE Name LIKE 'A%'", "SELECT COUNT() FROM Account WHERE Name LIKE 'A%'"},
		{"Opportunity;DROP", "OpportunityDROP"},
		{"Café", "Caf"},
		{"sql", "sql"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"**Contact**", "Contact"},
		{"  *Opportunity*  ", "Opportunity"},
		{"`Account`", "Account"},
		{"sql\n**Case**", "Case"},
		{"*sql\nLead", "Lead"},
		{"Invoice__c", "Invoice__c"},
		{"***", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), "input %q", tt.in)
	}

	property := func(s string) bool {
		once := SanitizeName(s)
		return SanitizeName(once) == once && !strings.Contains(once, "*")
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 1000}))
}

func TestSanitizeIdempotentAndClosed(t *testing.T) {
	property := func(s string) bool {
		once := Sanitize(s)
		if Sanitize(once) != once {
			return false
		}
		for _, r := range once {
			if !allowed(r) {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 2000}))

	tricky := []string{
		"sql\n\nsoql \n\tSELECT",
		"s`ql\nSELECT",
		"soql\n",
		"\n\nSQL\t\nsql\nx",
		"sq\x00l\nSELECT",
	}
	for _, s := range tricky {
		once := Sanitize(s)
		assert.Equal(t, once, Sanitize(once), "input %q", s)
	}
}

func TestExtractorQueryAndObjectName(t *testing.T) {
	stub := &stubLLM{text: "```sql\nSELECT Id FROM Account WHERE Name = 'Acme';\n```"}
	e := NewExtractor(stub)

	assert.Equal(t, "SELECT Id FROM Account WHERE Name = 'Acme'", e.Query(context.Background(), "show me accounts named Acme"))
	require.Len(t, stub.calls, 1)
	assert.Equal(t, llm.PurposeExtract, stub.calls[0].Purpose)
	assert.True(t, strings.HasSuffix(stub.calls[0].Prompt, "Request: show me accounts named Acme"))

	stub.text = "**Contact**"
	assert.Equal(t, "Contact", e.ObjectName(context.Background(), "what fields does a contact have"))

	stub.text = "SELECT Name FROM Account WHERE Name LIKE '*Acme'"
	assert.Equal(t, "SELECT Name FROM Account WHERE Name LIKE '*Acme'", e.Query(context.Background(), "accounts like acme"))
}

func TestExtractorAddsSchemaNotes(t *testing.T) {
	stub := &stubLLM{text: "SELECT Id FROM Opportunity"}
	notes := knowledge.NewStaticProvider([]knowledge.Snippet{
		{Title: "Deals", Content: "Deals are Opportunity records.", Keywords: []string{"deal"}},
		{Title: "Cases", Content: "Tickets are Case records.", Keywords: []string{"ticket"}},
	}, 3)
	e := NewExtractor(stub, WithKnowledge(notes))

	e.Query(context.Background(), "show open deals")
	require.Len(t, stub.calls, 1)
	prompt := stub.calls[0].Prompt
	assert.True(t, strings.HasPrefix(prompt, "Notes about this Salesforce org:\n- Deals: Deals are Opportunity records.\n\n"))
	assert.NotContains(t, prompt, "Case records")
	assert.True(t, strings.HasSuffix(prompt, "Request: show open deals"))

	e.ObjectName(context.Background(), "what is on a contact")
	require.Len(t, stub.calls, 2)
	assert.True(t, strings.HasPrefix(stub.calls[1].Prompt, objectNamePrompt))
}

func TestExtractorDegradesOnError(t *testing.T) {
	e := NewExtractor(&stubLLM{err: errors.New("quota exceeded")})
	assert.Equal(t, "", e.Query(context.Background(), "show me accounts"))
	assert.Equal(t, "", NewExtractor(nil).ObjectName(context.Background(), "x"))
}

func TestSummarizerPassesThrough(t *testing.T) {
	stub := &stubLLM{text: "  The available objects are Account and Contact.  "}
	s := NewSummarizer(stub)

	payload := json.RawMessage(`{"jsonrpc":"2.0","result":{"objects":["Account","Contact"]},"id":1}`)
	assert.Equal(t, "The available objects are Account and Contact.", s.Summarize(context.Background(), payload))

	require.Len(t, stub.calls, 1)
	assert.Equal(t, llm.PurposeSummarize, stub.calls[0].Purpose)
	assert.True(t, strings.HasSuffix(stub.calls[0].Prompt, "JSON:\n"+string(payload)))
}

func TestSummarizerFallback(t *testing.T) {
	payload := json.RawMessage("{\n  \"error\": {\"code\": -32000}\n}")

	failing := NewSummarizer(&stubLLM{err: errors.New("boom")})
	assert.Equal(t, `Salesforce returned: {"error":{"code":-32000}}`, failing.Summarize(context.Background(), payload))

	empty := NewSummarizer(&stubLLM{text: " "})
	assert.Equal(t, `Salesforce returned: {"error":{"code":-32000}}`, empty.Summarize(context.Background(), payload))

	assert.Equal(t, "Salesforce returned: null", NewSummarizer(nil).Summarize(context.Background(), nil))
}
