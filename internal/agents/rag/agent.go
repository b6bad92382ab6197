package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"genforge/internal/llm"
	"genforge/internal/logging"
	"genforge/internal/types"
)

// Description is the capability text registered alongside the agent.
const Description = "Answers questions from the project's markdown knowledge base " +
	"(architecture notes, runbooks, service documentation)."

const maxDocuments = 4

var answerPrompt = llm.MustPrompt("rag_answer", `Answer the question using only the documents below.
If the documents do not contain the answer, reply with exactly NO_ANSWER.

Documents:
{{.documents}}

Question:
{{.query}}`)

// Agent is a retrieval delegate over a markdown corpus. It satisfies the
// types.RAGAgent contract and is safe for concurrent Invoke calls.
type Agent struct {
	id     string
	name   string
	llm    llm.Client
	corpus *Corpus
	log    *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a delegate over the corpus directory.
func New(id, name string, client llm.Client, corpusDir string) (*Agent, error) {
	corpus, err := NewCorpus(corpusDir)
	if err != nil {
		return nil, err
	}
	return &Agent{
		id:     id,
		name:   name,
		llm:    client,
		corpus: corpus,
		log:    logging.L(logging.CategoryRAG),
	}, nil
}

func (a *Agent) ID() string   { return a.id }
func (a *Agent) Name() string { return a.name }

// Invoke retrieves matching documents and synthesizes an answer. A query the
// corpus cannot support returns NOT_ADDRESSED rather than an error; errors
// are reserved for transport failures.
func (a *Agent) Invoke(ctx context.Context, in types.RAGInput) (types.RAGOutput, error) {
	out := types.RAGOutput{
		Task:        in.CurrentTask,
		ChatHistory: in.ChatHistory,
	}

	docs := a.corpus.Search(in.Query, maxDocuments)
	if len(docs) == 0 {
		a.log.Info("no documents matched", zap.String("agent", a.id), zap.String("query", in.Query))
		out.ResponseType = types.ResponseNotAddressed
		out.Response = "No relevant documents found."
		return out, nil
	}

	var b strings.Builder
	sources := make([]string, len(docs))
	for i, d := range docs {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", d.Name, d.Content)
		sources[i] = d.Name
	}

	user, err := answerPrompt.Render(map[string]any{
		"documents": b.String(),
		"query":     in.Query,
	})
	if err != nil {
		return out, err
	}

	answer, err := a.llm.Complete(ctx, "You are a precise technical assistant.", user)
	if err != nil {
		return out, fmt.Errorf("rag agent %q: %w", a.id, err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" || answer == "NO_ANSWER" {
		out.ResponseType = types.ResponseNotAddressed
		out.Response = "The knowledge base does not cover this question."
		return out, nil
	}

	out.Response = answer
	out.ResponseType = types.ResponseAnswered
	out.Metadata = map[string]string{"sources": strings.Join(sources, ",")}
	out.Task.Status = types.StatusDone
	return out, nil
}

// Watch reloads the corpus when markdown files under its directory change.
// Non-blocking; Stop or context cancellation ends the watch.
func (a *Agent) Watch(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rag agent %q: create watcher: %w", a.id, err)
	}
	if err := w.Add(a.corpus.Dir()); err != nil {
		w.Close()
		return fmt.Errorf("rag agent %q: watch %q: %w", a.id, a.corpus.Dir(), err)
	}

	a.watcher = w
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.run(ctx, w, a.stopCh, a.doneCh)
	a.log.Info("corpus watcher started", zap.String("agent", a.id), zap.String("dir", a.corpus.Dir()))
	return nil
}

// Stop ends the corpus watch and waits for the event loop to exit.
func (a *Agent) Stop() {
	a.mu.Lock()
	w, stopCh, doneCh := a.watcher, a.stopCh, a.doneCh
	a.watcher, a.stopCh, a.doneCh = nil, nil, nil
	a.mu.Unlock()
	if w == nil {
		return
	}
	close(stopCh)
	<-doneCh
	w.Close()
}

func (a *Agent) run(ctx context.Context, w *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	// Rapid saves collapse into one reload per tick.
	const debounce = 200 * time.Millisecond
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				dirty = true
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			a.log.Error("corpus watcher error", zap.String("agent", a.id), zap.Error(err))
		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			if err := a.corpus.Load(); err != nil {
				a.log.Warn("corpus reload failed", zap.String("agent", a.id), zap.Error(err))
			}
		}
	}
}
