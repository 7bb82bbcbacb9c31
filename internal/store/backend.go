package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"livo/internal/app"
)

// scope names used by the revocation switch and the subscription registry.
const (
	scopeProfile  = "profile"
	scopeMemories = "memories"
	scopeHistory  = "history"
)

// subscriber delivers snapshots on its own goroutine so a publish never
// blocks on (or deadlocks with) the consumer's event loop. The channel is
// latest-wins: snapshots are whole values, so only the newest matters.
type subscriber struct {
	deliver chan func()
	done    chan struct{}
	once    sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		deliver: make(chan func(), 1),
		done:    make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-s.done:
				return
			case fn := <-s.deliver:
				fn()
			}
		}
	}()
	return s
}

func (s *subscriber) push(fn func()) {
	for {
		select {
		case <-s.done:
			return
		case s.deliver <- fn:
			return
		default:
			select {
			case <-s.deliver:
			default:
			}
		}
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

type scopeKey struct {
	uid   string
	scope string
}

type scopedSub struct {
	sub  *subscriber
	fail func(error)
	load func() (func(), error)
}

type authSub struct {
	sub *subscriber
	fn  func(*app.Identity)
}

// LocalBackend implements app.Backend on an embedded DuckDB database. It is
// a stand-in for the hosted realtime service: same contract, one process.
type LocalBackend struct {
	db     *sql.DB
	logger *app.Logger

	mu       sync.Mutex
	current  *app.Identity
	token    string
	nextID   int
	authSubs map[int]authSub
	subs     map[scopeKey]map[int]scopedSub
	revoked  map[scopeKey]bool
}

func NewLocalBackend(db *sql.DB, logger *app.Logger) *LocalBackend {
	return &LocalBackend{
		db:       db,
		logger:   logger,
		authSubs: make(map[int]authSub),
		subs:     make(map[scopeKey]map[int]scopedSub),
		revoked:  make(map[scopeKey]bool),
	}
}

// Close tears down every live subscriber goroutine.
func (b *LocalBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.authSubs {
		s.sub.close()
	}
	b.authSubs = make(map[int]authSub)
	for _, m := range b.subs {
		for _, s := range m {
			s.sub.close()
		}
	}
	b.subs = make(map[scopeKey]map[int]scopedSub)
}

// SessionToken returns the opaque token for the current session, for the
// remember-me cache. Empty when signed out.
func (b *LocalBackend) SessionToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

// CurrentIdentity answers synchronously, unlike ObserveAuth which delivers
// on the subscriber's goroutine. Nil when signed out.
func (b *LocalBackend) CurrentIdentity() *app.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneIdentity(b.current)
}

// --- auth ---

func (b *LocalBackend) ObserveAuth(fn func(*app.Identity)) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := newSubscriber()
	b.authSubs[id] = authSub{sub: sub, fn: fn}
	current := cloneIdentity(b.current)
	b.mu.Unlock()

	sub.push(func() { fn(current) })

	return func() {
		b.mu.Lock()
		if s, ok := b.authSubs[id]; ok {
			s.sub.close()
			delete(b.authSubs, id)
		}
		b.mu.Unlock()
	}
}

func (b *LocalBackend) SignUp(ctx context.Context, name, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || password == "" {
		return app.ErrInvalidCredentials
	}

	var exists int
	err := b.db.QueryRowContext(ctx, `SELECT count(*) FROM accounts WHERE email = ?`, email).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	if exists > 0 {
		return app.ErrEmailInUse
	}

	salt := randomHex(16)
	// created_at equals last_sign_in_at exactly once, on the very first
	// session; the coordinator keys its new-identity detection on that.
	now := time.Now().UTC().Truncate(time.Microsecond)
	uid := uuid.NewString()
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO accounts (uid, email, display_name, password_hash, salt, created_at, last_sign_in_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uid, email, name, hashPassword(salt, password), salt, now, now)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	token, err := b.issueToken(ctx, uid)
	if err != nil {
		return err
	}
	b.setCurrent(&app.Identity{
		UID:          uid,
		Email:        email,
		DisplayName:  name,
		CreatedAt:    now,
		LastSignInAt: now,
	}, token)
	b.logger.Info("account created", map[string]interface{}{"uid": uid})
	return nil
}

func (b *LocalBackend) SignIn(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	var (
		uid, displayName, hash, salt string
		createdAt                    time.Time
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT uid, display_name, password_hash, salt, created_at FROM accounts WHERE email = ?`, email).
		Scan(&uid, &displayName, &hash, &salt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return app.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(hash), []byte(hashPassword(salt, password))) != 1 {
		return app.ErrInvalidCredentials
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	if _, err := b.db.ExecContext(ctx, `UPDATE accounts SET last_sign_in_at = ? WHERE uid = ?`, now, uid); err != nil {
		return fmt.Errorf("stamp sign-in: %w", err)
	}

	token, err := b.issueToken(ctx, uid)
	if err != nil {
		return err
	}
	b.setCurrent(&app.Identity{
		UID:          uid,
		Email:        email,
		DisplayName:  displayName,
		CreatedAt:    createdAt,
		LastSignInAt: now,
	}, token)
	b.logger.Info("signed in", map[string]interface{}{"uid": uid})
	return nil
}

// Resume restores a remembered session from its token without a password.
// It must run before the coordinator starts observing auth so the initial
// observation already carries the restored identity.
func (b *LocalBackend) Resume(ctx context.Context, uid, token string) error {
	var storedUID string
	err := b.db.QueryRowContext(ctx, `SELECT uid FROM sessions WHERE token = ?`, token).Scan(&storedUID)
	if errors.Is(err, sql.ErrNoRows) {
		return app.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if storedUID != uid {
		return app.ErrInvalidCredentials
	}

	var (
		email, displayName string
		createdAt          time.Time
	)
	err = b.db.QueryRowContext(ctx,
		`SELECT email, display_name, created_at FROM accounts WHERE uid = ?`, uid).
		Scan(&email, &displayName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return app.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	if _, err := b.db.ExecContext(ctx, `UPDATE accounts SET last_sign_in_at = ? WHERE uid = ?`, now, uid); err != nil {
		return fmt.Errorf("stamp sign-in: %w", err)
	}

	b.setCurrent(&app.Identity{
		UID:          uid,
		Email:        email,
		DisplayName:  displayName,
		CreatedAt:    createdAt,
		LastSignInAt: now,
	}, token)
	b.logger.Info("session resumed", map[string]interface{}{"uid": uid})
	return nil
}

func (b *LocalBackend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	token := b.token
	b.mu.Unlock()
	if token != "" {
		if _, err := b.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
			return fmt.Errorf("drop session: %w", err)
		}
	}
	b.setCurrent(nil, "")
	return nil
}

func (b *LocalBackend) issueToken(ctx context.Context, uid string) (string, error) {
	token := randomHex(24)
	_, err := b.db.ExecContext(ctx, `INSERT INTO sessions (token, uid, issued_at) VALUES (?, ?, ?)`,
		token, uid, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}
	return token, nil
}

func (b *LocalBackend) setCurrent(id *app.Identity, token string) {
	b.mu.Lock()
	b.current = id
	b.token = token
	targets := make([]authSub, 0, len(b.authSubs))
	for _, s := range b.authSubs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, t := range targets {
		t := t
		snapshot := cloneIdentity(id)
		t.sub.push(func() { t.fn(snapshot) })
	}
}

// --- subscriptions ---

func (b *LocalBackend) SubscribeProfile(uid string, fn func(*app.UserProfile), fail func(error)) (cancel func()) {
	return b.subscribe(uid, scopeProfile, fail, func() (func(), error) {
		p, err := b.readProfile(context.Background(), uid)
		if err != nil {
			return nil, err
		}
		return func() { fn(p) }, nil
	})
}

func (b *LocalBackend) SubscribeMemories(uid string, fn func([]app.Memory), fail func(error)) (cancel func()) {
	return b.subscribe(uid, scopeMemories, fail, func() (func(), error) {
		items, err := b.readMemories(context.Background(), uid)
		if err != nil {
			return nil, err
		}
		return func() { fn(items) }, nil
	})
}

func (b *LocalBackend) SubscribeHistory(uid string, fn func([]app.ChatMessage), fail func(error)) (cancel func()) {
	return b.subscribe(uid, scopeHistory, fail, func() (func(), error) {
		items, err := b.readHistory(context.Background(), uid)
		if err != nil {
			return nil, err
		}
		return func() { fn(items) }, nil
	})
}

// subscribe registers one subscriber for a scope and delivers the initial
// snapshot. load builds the delivery closure from the current stored value;
// it is reused by publish on every later write to the scope.
func (b *LocalBackend) subscribe(uid, scope string, fail func(error), load func() (func(), error)) (cancel func()) {
	key := scopeKey{uid: uid, scope: scope}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := newSubscriber()
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]scopedSub)
	}
	b.subs[key][id] = scopedSub{sub: sub, fail: fail, load: load}
	denied := b.revoked[key]
	b.mu.Unlock()

	b.deliverTo(scopedSub{sub: sub, fail: fail, load: load}, denied)

	return func() {
		b.mu.Lock()
		if m, ok := b.subs[key]; ok {
			if s, ok := m[id]; ok {
				s.sub.close()
				delete(m, id)
			}
			if len(m) == 0 {
				delete(b.subs, key)
			}
		}
		b.mu.Unlock()
	}
}

func (b *LocalBackend) deliverTo(s scopedSub, denied bool) {
	if denied {
		s.sub.push(func() { s.fail(app.ErrPermissionDenied) })
		return
	}
	deliver, err := s.load()
	if err != nil {
		s.sub.push(func() { s.fail(err) })
		return
	}
	s.sub.push(deliver)
}

// publish re-reads the scope for every live subscriber and pushes the fresh
// snapshot. Runs after every write to the scope.
func (b *LocalBackend) publish(uid, scope string) {
	key := scopeKey{uid: uid, scope: scope}

	b.mu.Lock()
	targets := make([]scopedSub, 0, len(b.subs[key]))
	for _, s := range b.subs[key] {
		targets = append(targets, s)
	}
	denied := b.revoked[key]
	b.mu.Unlock()

	for _, t := range targets {
		b.deliverTo(t, denied)
	}
}

// RevokeAccess flips a scope into permission-denied: live subscribers get
// the error callback and later reads and writes on the scope are refused.
func (b *LocalBackend) RevokeAccess(uid, scope string) {
	key := scopeKey{uid: uid, scope: scope}
	b.mu.Lock()
	b.revoked[key] = true
	targets := make([]scopedSub, 0, len(b.subs[key]))
	for _, s := range b.subs[key] {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, t := range targets {
		t := t
		t.sub.push(func() { t.fail(app.ErrPermissionDenied) })
	}
}

func (b *LocalBackend) scopeDenied(uid, scope string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revoked[scopeKey{uid: uid, scope: scope}]
}

// --- data ---

func (b *LocalBackend) WriteProfile(ctx context.Context, profile app.UserProfile) error {
	if b.scopeDenied(profile.ID, scopeProfile) {
		return app.ErrPermissionDenied
	}
	doc, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO profiles (uid, doc) VALUES (?, ?) ON CONFLICT (uid) DO UPDATE SET doc = excluded.doc`,
		profile.ID, string(doc))
	if err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	b.publish(profile.ID, scopeProfile)
	return nil
}

func (b *LocalBackend) AppendMemory(ctx context.Context, uid string, m app.Memory) (string, error) {
	if b.scopeDenied(uid, scopeMemories) {
		return "", app.ErrPermissionDenied
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp == "" {
		m.Timestamp = time.Now().Format(time.RFC3339)
	}
	doc, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO memories (id, uid, seq, doc) VALUES (?, ?, nextval('seq_rows'), ?)`,
		m.ID, uid, string(doc))
	if err != nil {
		return "", fmt.Errorf("append memory: %w", err)
	}
	b.publish(uid, scopeMemories)
	return m.ID, nil
}

func (b *LocalBackend) SetMemoryMeta(ctx context.Context, uid, memoryID string, meta app.MemoryMeta) error {
	if b.scopeDenied(uid, scopeMemories) {
		return app.ErrPermissionDenied
	}
	var raw string
	err := b.db.QueryRowContext(ctx, `SELECT doc FROM memories WHERE uid = ? AND id = ?`, uid, memoryID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("memory %s not found", memoryID)
	}
	if err != nil {
		return fmt.Errorf("load memory: %w", err)
	}
	var m app.Memory
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return fmt.Errorf("decode memory: %w", err)
	}
	m.Meta = meta
	doc, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, `UPDATE memories SET doc = ? WHERE uid = ? AND id = ?`, string(doc), uid, memoryID); err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	b.publish(uid, scopeMemories)
	return nil
}

func (b *LocalBackend) AppendMessage(ctx context.Context, uid string, msg app.ChatMessage) (string, error) {
	if b.scopeDenied(uid, scopeHistory) {
		return "", app.ErrPermissionDenied
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().Format(time.RFC3339)
	}
	doc, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO messages (id, uid, seq, doc) VALUES (?, ?, nextval('seq_rows'), ?)`,
		msg.ID, uid, string(doc))
	if err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}
	b.publish(uid, scopeHistory)
	return msg.ID, nil
}

func (b *LocalBackend) ReplaceCalendarEvents(ctx context.Context, uid string, events []app.CalendarEvent) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM calendar_events WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	for _, ev := range events {
		doc, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO calendar_events (id, uid, doc) VALUES (?, ?, ?)`, ev.ID, uid, string(doc)); err != nil {
			return fmt.Errorf("store event: %w", err)
		}
	}
	return tx.Commit()
}

// CalendarEvents returns the synced events for the settings screen.
func (b *LocalBackend) CalendarEvents(ctx context.Context, uid string) ([]app.CalendarEvent, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT doc FROM calendar_events WHERE uid = ? ORDER BY id`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []app.CalendarEvent
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var ev app.CalendarEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// --- reads ---

func (b *LocalBackend) readProfile(ctx context.Context, uid string) (*app.UserProfile, error) {
	var raw string
	err := b.db.QueryRowContext(ctx, `SELECT doc FROM profiles WHERE uid = ?`, uid).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	var p app.UserProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

func (b *LocalBackend) readMemories(ctx context.Context, uid string) ([]app.Memory, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT doc FROM memories WHERE uid = ? ORDER BY seq`, uid)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	defer rows.Close()

	out := []app.Memory{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var m app.Memory
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// readHistory returns the most recent messages in chronological order: the
// query takes the newest rows by their timestamp field, the reversal
// restores oldest-first. Insertion order breaks timestamp ties, which also
// covers backfilled messages carrying an older caller-supplied stamp.
func (b *LocalBackend) readHistory(ctx context.Context, uid string) ([]app.ChatMessage, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT doc FROM messages WHERE uid = ?
		 ORDER BY json_extract_string(doc, '$.timestamp') DESC, seq DESC LIMIT ?`, uid, app.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	newestFirst := []app.ChatMessage{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var msg app.ChatMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]app.ChatMessage, len(newestFirst))
	for i, msg := range newestFirst {
		out[len(out)-1-i] = msg
	}
	return out, nil
}

func cloneIdentity(id *app.Identity) *app.Identity {
	if id == nil {
		return nil
	}
	out := *id
	return &out
}

func hashPassword(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
