package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"companion-api/internal/models"
	"companion-api/internal/repository"
	"companion-api/internal/websocket"
	"companion-api/pkg/cache"
)

// QuoteStore is the persistence the quote service needs
type QuoteStore interface {
	Create(ctx context.Context, quote *models.Quote) (*models.Quote, error)
	FindByID(ctx context.Context, id int64) (*models.Quote, error)
}

// Dispatcher fans an event out to websocket subscribers
type Dispatcher interface {
	Dispatch(subscription string, data any) int
}

type QuoteService struct {
	quotes     QuoteStore
	dispatcher Dispatcher
	cache      cache.Cache
	logger     *slog.Logger
}

func NewQuoteService(quotes QuoteStore, dispatcher Dispatcher) *QuoteService {
	return &QuoteService{
		quotes:     quotes,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
}

// SetCache enables read-through caching of quotes
func (s *QuoteService) SetCache(c cache.Cache) {
	s.cache = c
}

func (s *QuoteService) GetQuote(ctx context.Context, id int64) (*models.Quote, error) {
	key := strconv.FormatInt(id, 10)

	if s.cache != nil {
		var cached models.Quote
		found, err := s.cache.Get(ctx, "quote", key, &cached)
		if err != nil {
			s.logger.Warn("quote cache read failed", "id", id, "error", err)
		}
		if found {
			return &cached, nil
		}
	}

	quote, err := s.quotes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, "quote", key, quote); err != nil {
			s.logger.Warn("quote cache write failed", "id", id, "error", err)
		}
	}
	return quote, nil
}

// AddQuote stores a quote on behalf of addedBy and announces it to "quotes" subscribers
func (s *QuoteService) AddQuote(ctx context.Context, addedBy int64, req *models.CreateQuoteRequest) (*models.Quote, error) {
	quote := &models.Quote{
		Content:   req.Content,
		AddedBy:   addedBy,
		Speaker:   req.Speaker,
		Source:    req.Source,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.quotes.Create(ctx, quote)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrQuoteExists
		}
		return nil, err
	}

	if s.dispatcher != nil {
		n := s.dispatcher.Dispatch(websocket.SubscriptionQuotes, created)
		s.logger.Debug("quote dispatched", "id", created.ID, "listeners", n)
	}
	return created, nil
}
