//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"syscall/js"

	"kbsearch/internal/adapter/embedding"
	"kbsearch/internal/adapter/memstore"
	"kbsearch/internal/adapter/retriever"
	"kbsearch/internal/adapter/source"
	"kbsearch/internal/adapter/vectorindex"
	"kbsearch/internal/usecase"
)

var (
	store    *memstore.MemoryStore
	embedder *embedding.HashEmbedder
	index    *vectorindex.Index
	syncUC   *usecase.SyncUseCase
	answerUC *usecase.AnswerUseCase
	search   *usecase.RetrieveUseCase
	logger   = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func init() {
	embedder = embedding.NewHashEmbedder(256)
	reset()
}

func reset() {
	store = memstore.NewMemoryStore()
	index = vectorindex.New()
	syncUC = usecase.NewSyncUseCase(store, embedder, index, 64, logger)
	searcher := retriever.NewSemanticSearcher(embedder, index, 0.3)
	search = usecase.NewRetrieveUseCase(searcher, nil, usecase.RetrieveOptions{PoolSize: 10, SmallPoolBypass: 3}, logger)
	answerUC = usecase.NewAnswerUseCase(search, store, usecase.AnswerOptions{Suggestions: 3}, logger)
}

func main() {
	c := make(chan struct{})

	js.Global().Set("kbSync", js.FuncOf(syncArticles))
	js.Global().Set("kbSearch", js.FuncOf(searchArticles))
	js.Global().Set("kbAsk", js.FuncOf(ask))
	js.Global().Set("kbClear", js.FuncOf(clearIndex))
	js.Global().Set("kbStats", js.FuncOf(getStats))

	<-c
}

func syncArticles(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: kbSync(json)")
	}

	loaded, err := source.NewLoader(true).Load(strings.NewReader(args[0].String()))
	if err != nil {
		return makeError("load failed: " + err.Error())
	}

	result, err := syncUC.Sync(context.Background(), loaded.Articles, nil)
	if err != nil {
		return makeError("sync failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"success":    true,
		"synced":     result.Synced,
		"embedded":   result.Embedded,
		"skipped":    result.Skipped + len(loaded.Skipped),
		"generation": result.Generation,
	})
}

func searchArticles(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: kbSearch(query, [limit])")
	}

	query := args[0].String()
	limit := 5
	if len(args) > 1 {
		limit = args[1].Int()
	}

	results, err := search.Retrieve(context.Background(), query, limit)
	if err != nil {
		return makeError("search failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"results": usecase.ToResults(results),
		"query":   query,
	})
}

func ask(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: kbAsk(question, [sessionId])")
	}

	session := ""
	if len(args) > 1 {
		session = args[1].String()
	}

	resp, err := answerUC.Answer(context.Background(), session, args[0].String())
	if err != nil {
		return makeError(err.Error())
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func clearIndex(this js.Value, args []js.Value) interface{} {
	reset()
	return makeResult(map[string]interface{}{
		"success": true,
	})
}

func getStats(this js.Value, args []js.Value) interface{} {
	ctx := context.Background()
	articles, _ := store.CountArticles(ctx)
	embedded, _ := store.CountEmbedded(ctx)
	chats, _ := store.CountChats(ctx)

	return makeResult(map[string]interface{}{
		"articles":   articles,
		"embedded":   embedded,
		"chats":      chats,
		"generation": index.Current().Number(),
	})
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
