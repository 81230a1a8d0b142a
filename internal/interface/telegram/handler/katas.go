package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// KATAS HANDLER
// Handles /daily_stats, /update_solutions, /get_uncompleted, /add_kata
// and the user_ and next_ callbacks.
// ══════════════════════════════════════════════════════════════════════════════

// KatasHandler serves the kata catalog and solved statistics.
type KatasHandler struct {
	syncCmd      *command.SyncSolvedHandler
	addKataCmd   *command.AddKataHandler
	statsQuery   *query.GetDailyStatsHandler
	missingQuery *query.GetMissingKatasHandler
	totalQuery   *query.GetCompletedTotalHandler
	keyboards    *presenter.KeyboardBuilder
	logger       *slog.Logger
}

// KatasHandlerDeps groups the dependencies of KatasHandler.
type KatasHandlerDeps struct {
	SyncCmd      *command.SyncSolvedHandler
	AddKataCmd   *command.AddKataHandler
	StatsQuery   *query.GetDailyStatsHandler
	MissingQuery *query.GetMissingKatasHandler
	TotalQuery   *query.GetCompletedTotalHandler
	Keyboards    *presenter.KeyboardBuilder
	Logger       *slog.Logger
}

// NewKatasHandler creates a new KatasHandler.
func NewKatasHandler(deps KatasHandlerDeps) *KatasHandler {
	return &KatasHandler{
		syncCmd:      deps.SyncCmd,
		addKataCmd:   deps.AddKataCmd,
		statsQuery:   deps.StatsQuery,
		missingQuery: deps.MissingQuery,
		totalQuery:   deps.TotalQuery,
		keyboards:    deps.Keyboards,
		logger:       loggerOrDefault(deps.Logger, "katas"),
	}
}

// DailyStats replies with the solved-kata ranking. Each row has a button
// that shows the member's Codewars total.
func (h *KatasHandler) DailyStats(ctx context.Context, _ Request) (*Response, error) {
	stats, err := h.statsQuery.Handle(ctx)
	if err != nil {
		return errorResponse(h.logger, "daily_stats", err), nil
	}

	resp := HTML(presenter.DailyStats(stats))
	resp.Keyboard = h.keyboards.StatsKeyboard(stats)
	return resp, nil
}

// UpdateSolutions syncs the sender's solved katas.
func (h *KatasHandler) UpdateSolutions(ctx context.Context, req Request) (*Response, error) {
	result, err := h.syncCmd.Handle(ctx, command.SyncSolvedCommand{
		TelegramID: shared.TelegramID(req.TelegramID),
	})
	if err != nil {
		return errorResponse(h.logger, "update_solutions", err), nil
	}
	return Text(presenter.SolvedSinceLastUpdate(result.NewlySolved)), nil
}

// Uncompleted replies with the first page of catalog katas the sender has
// not solved. Only available in private chats.
func (h *KatasHandler) Uncompleted(ctx context.Context, req Request) (*Response, error) {
	if !req.IsPrivate() {
		return Text(presenter.TextPrivateOnly), nil
	}

	page, err := h.missingQuery.Handle(ctx, query.GetMissingKatasQuery{
		TelegramID: shared.TelegramID(req.TelegramID),
	})
	if err != nil {
		return errorResponse(h.logger, "get_uncompleted", err), nil
	}
	if page.Total == 0 {
		return Text(presenter.TextAllKatasSolved), nil
	}

	return &Response{
		Text:     presenter.TextMissingKatas,
		Keyboard: h.keyboards.MissingKatasKeyboard(page),
	}, nil
}

// NextPage handles next_<offset>: it swaps the keyboard of the list message
// for the requested page of the callback sender.
func (h *KatasHandler) NextPage(ctx context.Context, req Request) (*Response, error) {
	offset, ok := presenter.ParseCallbackInt(req.Data, presenter.CallbackNext)
	if !ok || offset < 0 {
		return nil, nil
	}

	page, err := h.missingQuery.Handle(ctx, query.GetMissingKatasQuery{
		TelegramID: shared.TelegramID(req.TelegramID),
		Offset:     offset,
	})
	if err != nil {
		return errorResponse(h.logger, "next_page", err), nil
	}

	return &Response{
		EditMarkup: true,
		Keyboard:   h.keyboards.MissingKatasKeyboard(page),
	}, nil
}

// UserTotal handles user_<handle>: it replies with the Codewars total.
func (h *KatasHandler) UserTotal(ctx context.Context, req Request) (*Response, error) {
	handle := strings.TrimPrefix(req.Data, presenter.CallbackUser)
	if handle == "" {
		return nil, nil
	}

	total, err := h.totalQuery.Handle(ctx, handle)
	if err != nil {
		return errorResponse(h.logger, "user_total", err), nil
	}
	return HTML(presenter.CompletedTotal(total)), nil
}

// AddKata adds a kata to the catalog by id or slug.
func (h *KatasHandler) AddKata(ctx context.Context, req Request) (*Response, error) {
	ref := strings.TrimSpace(req.Args)
	if ref == "" {
		return Text(presenter.TextAddKataUsage), nil
	}

	k, err := h.addKataCmd.Handle(ctx, command.AddKataCommand{IDOrSlug: ref})
	if err != nil {
		return errorResponse(h.logger, "add_kata", err), nil
	}
	return HTML(presenter.KataAdded(k.Name, h.keyboards.KataURL(k.Slug))), nil
}
