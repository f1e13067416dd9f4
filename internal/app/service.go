package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/docoho/emoji/internal/auth"
	"github.com/docoho/emoji/internal/catalog"
	"github.com/docoho/emoji/internal/config"
	"github.com/docoho/emoji/internal/keywords"
	"github.com/docoho/emoji/internal/store"
)

// validate is a shared validator instance for request bodies.
var validate = validator.New()

type dataStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	CreateUser(ctx context.Context, email, hashedPassword string, displayName *string) (store.User, error)
	UpdateUserPassword(ctx context.Context, userID int64, hashedPassword string) error
	GetEmoji(ctx context.Context, id int64) (store.Emoji, error)
	InsertEmoji(ctx context.Context, item store.Emoji) (store.Emoji, error)
	UpdateEmoji(ctx context.Context, item store.Emoji) (store.Emoji, error)
	DeleteEmoji(ctx context.Context, id int64) error
	ExistsEmoji(ctx context.Context, symbol, title string) (bool, error)
	EnsureSeedCatalog(ctx context.Context) error
	MarkResetTokenUsed(ctx context.Context, tokenHash string, expiresAt time.Time) error
	IsResetTokenUsed(ctx context.Context, tokenHash string) (bool, error)
	Ping(ctx context.Context) error
}

type emojiLister interface {
	List(ctx context.Context, q catalog.Query) ([]store.Emoji, int, error)
}

type resetLedger interface {
	MarkResetTokenUsed(ctx context.Context, tokenHash string, expiresAt time.Time) error
	IsResetTokenUsed(ctx context.Context, tokenHash string) (bool, error)
}

type Service struct {
	cfg    config.Config
	store  dataStore
	lister emojiLister
	ledger resetLedger
	tokens *auth.Tokens
}

// New wires the service with the Postgres-backed reset ledger.
func New(cfg config.Config, dataStore dataStore, lister emojiLister) *Service {
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		lister: lister,
		ledger: dataStore,
		tokens: auth.NewTokens(cfg.JWTSecret, cfg.AccessTTL),
	}
}

// NewWithResetLedger wires the service with an external (Redis) reset ledger.
func NewWithResetLedger(cfg config.Config, dataStore dataStore, lister emojiLister, ledger resetLedger) *Service {
	svc := New(cfg, dataStore, lister)
	svc.ledger = ledger
	return svc
}

// Bootstrap migrates the static seed catalog into storage. The catalog and
// user submissions share one id space; there is no offset numbering.
func (s *Service) Bootstrap(ctx context.Context) error {
	return s.store.EnsureSeedCatalog(ctx)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ── auth ──

type RegisterInput struct {
	Email       string  `json:"email" validate:"required,email,max=256"`
	Password    string  `json:"password" validate:"required,min=8,max=128"`
	DisplayName *string `json:"display_name" validate:"omitempty,max=128"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserPublic struct {
	ID          int64   `json:"id"`
	Email       string  `json:"email"`
	DisplayName *string `json:"display_name"`
	IsActive    bool    `json:"is_active"`
	IsSuperuser bool    `json:"is_superuser"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func userPublic(user store.User) UserPublic {
	return UserPublic{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		IsActive:    user.IsActive,
		IsSuperuser: user.IsSuperuser,
	}
}

func validationError(err error) *DomainError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid request", details)
	}
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
}

// Register creates a user. Email equality is case-sensitive as stored:
// Foo@x.com and foo@x.com are two accounts.
func (s *Service) Register(ctx context.Context, in RegisterInput) (UserPublic, error) {
	if err := validate.Struct(in); err != nil {
		return UserPublic{}, validationError(err)
	}

	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return UserPublic{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return UserPublic{}, err
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return UserPublic{}, err
	}

	user, err := s.store.CreateUser(ctx, in.Email, hashed, in.DisplayName)
	if errors.Is(err, store.ErrDuplicateEmail) {
		// Lost the check-then-act race; the unique index caught it.
		return UserPublic{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	}
	if err != nil {
		return UserPublic{}, err
	}
	return userPublic(user), nil
}

func (s *Service) Login(ctx context.Context, in LoginInput) (TokenResponse, error) {
	if err := validate.Struct(in); err != nil {
		return TokenResponse{}, validationError(err)
	}

	invalid := domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Incorrect email or password", nil)

	user, err := s.store.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenResponse{}, invalid
	}
	if err != nil {
		return TokenResponse{}, err
	}
	if !auth.VerifyPassword(in.Password, user.HashedPassword) {
		return TokenResponse{}, invalid
	}

	token, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{AccessToken: token, TokenType: "bearer"}, nil
}

// ResolveUser maps a bearer token to an active user. Failures are explicit:
// an absent or undecodable token, or an unknown subject, is UNAUTHORIZED; a
// known but inactive user is FORBIDDEN.
func (s *Service) ResolveUser(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", nil)
	}
	userID, err := s.tokens.ParseAccessToken(token)
	if err != nil {
		return store.User{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Could not validate credentials", nil)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Could not validate credentials", nil)
	}
	if err != nil {
		return store.User{}, err
	}
	if !user.IsActive {
		return store.User{}, domainError(http.StatusForbidden, "FORBIDDEN", "Inactive user", nil)
	}
	return user, nil
}

// OptionalUser collapses every resolution failure to anonymous. Read paths
// use it so identity, when present, only shapes the response.
func (s *Service) OptionalUser(ctx context.Context, token string) *store.User {
	if token == "" {
		return nil
	}
	user, err := s.ResolveUser(ctx, token)
	if err != nil {
		return nil
	}
	return &user
}

type PasswordResetResponse struct {
	Message    string `json:"message"`
	ResetToken string `json:"reset_token,omitempty"`
}

// RequestPasswordReset always answers with the same neutral message. When the
// email exists the reset token is echoed in the response; there is no mailer
// in scope.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (PasswordResetResponse, error) {
	response := PasswordResetResponse{Message: "If the email exists, a reset link will be sent"}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return response, nil
	}
	if err != nil {
		return PasswordResetResponse{}, err
	}

	token, err := s.tokens.IssueResetToken(user.Email)
	if err != nil {
		return PasswordResetResponse{}, err
	}
	response.ResetToken = token
	return response, nil
}

type ConfirmResetInput struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// ConfirmPasswordReset burns the token on success. Forged, expired, and
// already-used tokens all fail the same way.
func (s *Service) ConfirmPasswordReset(ctx context.Context, in ConfirmResetInput) (PasswordResetResponse, error) {
	if err := validate.Struct(in); err != nil {
		return PasswordResetResponse{}, validationError(err)
	}

	invalid := domainError(http.StatusBadRequest, "INVALID_RESET_TOKEN", "Invalid or expired token", nil)

	email, ok := s.tokens.VerifyResetToken(in.Token)
	if !ok {
		return PasswordResetResponse{}, invalid
	}

	tokenHash := auth.HashToken(in.Token)
	used, err := s.ledger.IsResetTokenUsed(ctx, tokenHash)
	if err != nil {
		return PasswordResetResponse{}, err
	}
	if used {
		return PasswordResetResponse{}, invalid
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return PasswordResetResponse{}, domainError(http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
	}
	if err != nil {
		return PasswordResetResponse{}, err
	}

	hashed, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return PasswordResetResponse{}, err
	}
	if err := s.store.UpdateUserPassword(ctx, user.ID, hashed); err != nil {
		return PasswordResetResponse{}, err
	}

	if err := s.ledger.MarkResetTokenUsed(ctx, tokenHash, time.Now().Add(time.Hour)); err != nil {
		// The password is already reset; a ledger failure only permits replay
		// until the token expires on its own.
		return PasswordResetResponse{Message: "Password successfully reset"}, nil
	}

	return PasswordResetResponse{Message: "Password successfully reset"}, nil
}

// ── emojis ──

type EmojiView struct {
	ID             int64    `json:"id"`
	Symbol         string   `json:"symbol"`
	Title          string   `json:"title"`
	Description    *string  `json:"description"`
	Category       *string  `json:"category"`
	Keywords       []string `json:"keywords"`
	SubmitterEmail *string  `json:"submitter_email"`
	CanDelete      bool     `json:"can_delete"`
}

type EmojiListResponse struct {
	Items  []EmojiView `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func emojiView(item store.Emoji, current *store.User) EmojiView {
	return EmojiView{
		ID:             item.ID,
		Symbol:         item.Symbol,
		Title:          item.Title,
		Description:    item.Description,
		Category:       item.Category,
		Keywords:       keywords.Denormalize(item.Keywords),
		SubmitterEmail: item.SubmitterEmail,
		CanDelete:      canMutate(item, current),
	}
}

func (s *Service) ListEmojis(ctx context.Context, q catalog.Query, current *store.User) (EmojiListResponse, error) {
	if err := q.Validate(); err != nil {
		return EmojiListResponse{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	items, total, err := s.lister.List(ctx, q)
	if err != nil {
		return EmojiListResponse{}, err
	}

	views := make([]EmojiView, 0, len(items))
	for _, item := range items {
		views = append(views, emojiView(item, current))
	}
	return EmojiListResponse{Items: views, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

type EmojiCreateInput struct {
	Symbol         string   `json:"symbol" validate:"required,min=1,max=8"`
	Title          string   `json:"title" validate:"required,max=128"`
	Description    *string  `json:"description" validate:"omitempty,max=256"`
	Category       *string  `json:"category" validate:"omitempty,max=64"`
	Keywords       []string `json:"keywords" validate:"dive,excludes=0x2C"`
	SubmitterEmail *string  `json:"submitter_email" validate:"omitempty,email,max=256"`
}

func (s *Service) CreateEmoji(ctx context.Context, in EmojiCreateInput, current store.User) (EmojiView, error) {
	if err := validate.Struct(in); err != nil {
		return EmojiView{}, validationError(err)
	}

	duplicate := domainError(http.StatusConflict, "EMOJI_EXISTS", "Emoji already exists", nil)

	if exists, err := s.store.ExistsEmoji(ctx, in.Symbol, in.Title); err != nil {
		return EmojiView{}, err
	} else if exists {
		return EmojiView{}, duplicate
	}

	submitterEmail := in.SubmitterEmail
	if submitterEmail == nil {
		email := current.Email
		submitterEmail = &email
	}

	created, err := s.store.InsertEmoji(ctx, store.Emoji{
		Symbol:         in.Symbol,
		Title:          in.Title,
		Description:    in.Description,
		Category:       in.Category,
		Keywords:       keywords.Normalize(in.Keywords),
		SubmitterEmail: submitterEmail,
		SubmitterID:    &current.ID,
	})
	if errors.Is(err, store.ErrDuplicateEmoji) {
		return EmojiView{}, duplicate
	}
	if err != nil {
		return EmojiView{}, err
	}
	return emojiView(created, &current), nil
}

// OptionalField distinguishes an absent JSON field from an explicit null:
// absent means unchanged, null means clear.
type OptionalField[T any] struct {
	Set   bool
	Value *T
}

func (o *OptionalField[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

type EmojiUpdateInput struct {
	Symbol      OptionalField[string]   `json:"symbol"`
	Title       OptionalField[string]   `json:"title"`
	Description OptionalField[string]   `json:"description"`
	Category    OptionalField[string]   `json:"category"`
	Keywords    OptionalField[[]string] `json:"keywords"`
}

// applyUpdate folds a partial update into item. Symbol, title, and keywords
// are not nullable; an explicit null there is rejected.
func applyUpdate(item *store.Emoji, in EmojiUpdateInput) *DomainError {
	if in.Symbol.Set {
		if in.Symbol.Value == nil {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "symbol cannot be null", nil)
		}
		if n := utf8.RuneCountInString(*in.Symbol.Value); n < 1 || n > 8 {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "symbol must be 1-8 characters", nil)
		}
		item.Symbol = *in.Symbol.Value
	}
	if in.Title.Set {
		if in.Title.Value == nil {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title cannot be null", nil)
		}
		if n := utf8.RuneCountInString(*in.Title.Value); n < 1 || n > 128 {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title must be 1-128 characters", nil)
		}
		item.Title = *in.Title.Value
	}
	if in.Description.Set {
		if in.Description.Value != nil && utf8.RuneCountInString(*in.Description.Value) > 256 {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "description must be at most 256 characters", nil)
		}
		item.Description = in.Description.Value
	}
	if in.Category.Set {
		if in.Category.Value != nil && utf8.RuneCountInString(*in.Category.Value) > 64 {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "category must be at most 64 characters", nil)
		}
		item.Category = in.Category.Value
	}
	if in.Keywords.Set {
		if in.Keywords.Value == nil {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "keywords cannot be null", nil)
		}
		for _, keyword := range *in.Keywords.Value {
			if strings.Contains(keyword, keywords.Separator) {
				return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "keywords must not contain commas", nil)
			}
		}
		item.Keywords = keywords.Normalize(*in.Keywords.Value)
	}
	return nil
}

func (s *Service) UpdateEmoji(ctx context.Context, id int64, in EmojiUpdateInput, current store.User) (EmojiView, error) {
	item, err := s.store.GetEmoji(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return EmojiView{}, domainError(http.StatusNotFound, "NOT_FOUND", "Emoji not found", nil)
	}
	if err != nil {
		return EmojiView{}, err
	}

	if !canMutate(item, &current) {
		return EmojiView{}, domainError(http.StatusForbidden, "FORBIDDEN", "Not allowed to edit", nil)
	}

	if derr := applyUpdate(&item, in); derr != nil {
		return EmojiView{}, derr
	}

	updated, err := s.store.UpdateEmoji(ctx, item)
	if errors.Is(err, store.ErrDuplicateEmoji) {
		return EmojiView{}, domainError(http.StatusConflict, "EMOJI_EXISTS", "Emoji already exists", nil)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return EmojiView{}, domainError(http.StatusNotFound, "NOT_FOUND", "Emoji not found", nil)
	}
	if err != nil {
		return EmojiView{}, err
	}
	return emojiView(updated, &current), nil
}

func (s *Service) DeleteEmoji(ctx context.Context, id int64, current store.User) error {
	item, err := s.store.GetEmoji(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Emoji not found", nil)
	}
	if err != nil {
		return err
	}

	if !canMutate(item, &current) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Not allowed to delete", nil)
	}

	err = s.store.DeleteEmoji(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Emoji not found", nil)
	}
	return err
}
