package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Application wires the collaborators together and carries the action
// surface the screens call into.
type Application struct {
	Config      Config
	Logger      *Logger
	Backend     Backend
	AI          *GeminiClient
	Calendar    *CalendarClient
	Coordinator *Coordinator
	Remember    *RememberStore
}

func NewApplication(cfg Config, backend Backend, remember *RememberStore) *Application {
	logger := NewLogger(DefaultLogWriter(cfg.DataDir))

	ai := NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
	if cfg.GeminiAPIKey == "" {
		// No key means offline mode: canned replies, no extraction.
		ai = NewGeminiClient("mock", cfg.GeminiModel, "mock://")
	}

	return &Application{
		Config:      cfg,
		Logger:      logger,
		Backend:     backend,
		AI:          ai,
		Calendar:    NewCalendarClient(cfg.CalendarToken, backend),
		Coordinator: NewCoordinator(backend, logger),
		Remember:    remember,
	}
}

// SendChat runs one conversation turn: persist the user message, ask the
// assistant, persist its reply, then extract memories in the background.
// The assistant call itself never fails (it degrades to a fallback line);
// an error here means a backend write was refused.
func (a *Application) SendChat(ctx context.Context, text, imageDataURI string) error {
	text = strings.TrimSpace(text)
	if text == "" && imageDataURI == "" {
		return nil
	}

	st := a.Coordinator.State()

	userMsg := ChatMessage{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   text,
		Kind:      MessageText,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if imageDataURI != "" {
		userMsg.Kind = MessageImage
		userMsg.ImageURL = imageDataURI
	}
	if _, err := a.Coordinator.AppendMessage(ctx, userMsg); err != nil {
		return err
	}

	reply := a.AI.Converse(ctx, text, imageDataURI, st.History, st.Memories)

	assistantMsg := ChatMessage{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   reply,
		Kind:      MessageText,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if _, err := a.Coordinator.AppendMessage(ctx, assistantMsg); err != nil {
		return err
	}

	go a.extractAndStore(text, reply)
	return nil
}

// extractAndStore is best-effort: extraction failures yield zero facts and
// are never surfaced to the user.
func (a *Application) extractAndStore(userText, assistantText string) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	facts := a.AI.ExtractFacts(ctx, userText, assistantText)
	for _, fact := range facts {
		if strings.TrimSpace(fact.Content) == "" {
			continue
		}
		kind := ParseMemoryKind(fact.Type)
		m := Memory{
			Kind:      kind,
			Content:   fact.Content,
			Timestamp: time.Now().Format(time.RFC3339),
		}
		if kind == MemoryGoal {
			m.Meta = MemoryMeta{Progress: 0}
		}
		if _, err := a.Coordinator.AddMemory(ctx, m); err != nil {
			a.Logger.Error("memory write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if len(facts) > 0 {
		a.Logger.Info("memories extracted", map[string]interface{}{"count": len(facts)})
	}
}

// RememberCurrent caches the active identity for the next startup. Only
// backends that issue session tokens participate. The identity is read
// from the backend, which knows it the moment sign-in returns; the
// coordinator only learns about it later through the auth subscription.
func (a *Application) RememberCurrent() {
	if a.Remember == nil || !a.Config.RememberMe {
		return
	}
	issuer, ok := a.Backend.(interface {
		SessionToken() string
		CurrentIdentity() *Identity
	})
	if !ok {
		return
	}
	id := issuer.CurrentIdentity()
	token := issuer.SessionToken()
	if id == nil || token == "" {
		return
	}
	err := a.Remember.Save(RememberedSession{
		UID:   id.UID,
		Email: id.Email,
		Token: token,
	})
	if err != nil {
		a.Logger.Error("remember-me save failed", map[string]interface{}{"error": err.Error()})
	}
}

// ForgetRemembered drops the cached identity (sign-out path).
func (a *Application) ForgetRemembered() {
	if a.Remember == nil {
		return
	}
	if err := a.Remember.Clear(); err != nil {
		a.Logger.Error("remember-me clear failed", map[string]interface{}{"error": err.Error()})
	}
}
