// Package mongostore is the MongoDB implementation of the interview document store.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pavelanni/mockinterview/internal/model"
	"github.com/pavelanni/mockinterview/internal/store"
)

// Store wraps the users, interviews and sessions collections.
type Store struct {
	client     *mongo.Client
	users      *mongo.Collection
	interviews *mongo.Collection
	sessions   *mongo.Collection
}

// Connect dials MongoDB and ensures the indexes the store relies on.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	if dbName == "" {
		dbName = "mockinterview"
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := c.Ping(cctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := c.Database(dbName)
	s := &Store{
		client:     c,
		users:      db.Collection("users"),
		interviews: db.Collection("interviews"),
		sessions:   db.Collection("sessions"),
	}
	if err := s.ensureIndexes(cctx); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("index users.username: %w", err)
	}
	if _, err := s.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "interview_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("index sessions: %w", err)
	}
	if _, err := s.interviews.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "certificate.verification_code", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	}); err != nil {
		return fmt.Errorf("index interviews.certificate: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping reports whether the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = model.UserRoleCandidate
	}
	u.CreatedAt = time.Now().UTC()
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		return model.User{}, wrap(err, "create user")
	}
	return u, nil
}

// GetUserByUsername returns a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return findOne[model.User](ctx, s.users, bson.M{"username": username})
}

// GetUserByID returns a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, s.users, bson.M{"_id": id})
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	return findAll[model.User](ctx, s.users, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

// UserCount returns the total number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	n, err := s.users.CountDocuments(ctx, bson.M{})
	return int(n), err
}

// CreateInterview inserts a new interview.
func (s *Store) CreateInterview(ctx context.Context, iv *model.Interview) error {
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = time.Now().UTC()
	}
	if _, err := s.interviews.InsertOne(ctx, iv); err != nil {
		return wrap(err, "create interview")
	}
	return nil
}

// FindInterview returns an interview by ID.
func (s *Store) FindInterview(ctx context.Context, id string) (*model.Interview, error) {
	return findOne[model.Interview](ctx, s.interviews, bson.M{"_id": id})
}

// SaveInterview replaces an existing interview.
func (s *Store) SaveInterview(ctx context.Context, iv *model.Interview) error {
	res, err := s.interviews.ReplaceOne(ctx, bson.M{"_id": iv.ID}, iv)
	if err != nil {
		return wrap(err, "save interview")
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// FindCertificate returns the interview holding the given verification code.
func (s *Store) FindCertificate(ctx context.Context, code string) (*model.Interview, error) {
	return findOne[model.Interview](ctx, s.interviews, bson.M{"certificate.verification_code": strings.ToUpper(code)})
}

// ListInterviews returns interviews with the given status ("" for all).
func (s *Store) ListInterviews(ctx context.Context, status model.InterviewStatus) ([]model.Interview, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	return findAll[model.Interview](ctx, s.interviews, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

// CreateSession inserts a new session at version 1.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	sess.UpdatedAt = now
	sess.Version = 1
	if _, err := s.sessions.InsertOne(ctx, sess); err != nil {
		return wrap(err, "create session")
	}
	return nil
}

// FindSession returns the session of a user for an interview.
func (s *Store) FindSession(ctx context.Context, interviewID, userID string) (*model.Session, error) {
	return findOne[model.Session](ctx, s.sessions, bson.M{"interview_id": interviewID, "user_id": userID})
}

// FindSessionByID returns a session by ID.
func (s *Store) FindSessionByID(ctx context.Context, id string) (*model.Session, error) {
	return findOne[model.Session](ctx, s.sessions, bson.M{"_id": id})
}

// SaveSession replaces sess only if the stored version matches, then bumps Version.
func (s *Store) SaveSession(ctx context.Context, sess *model.Session) error {
	next := *sess
	next.Version = sess.Version + 1
	next.UpdatedAt = time.Now().UTC()

	res, err := s.sessions.ReplaceOne(ctx, bson.M{"_id": sess.ID, "version": sess.Version}, &next)
	if err != nil {
		return wrap(err, "save session")
	}
	if res.MatchedCount == 0 {
		n, err := s.sessions.CountDocuments(ctx, bson.M{"_id": sess.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	sess.Version, sess.UpdatedAt = next.Version, next.UpdatedAt
	return nil
}

// ListSessions returns sessions with the given status ("" for all).
func (s *Store) ListSessions(ctx context.Context, status model.SessionStatus) ([]model.Session, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	return findAll[model.Session](ctx, s.sessions, filter, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
}

// ListUnreconciled returns completed sessions whose interview is not completed.
func (s *Store) ListUnreconciled(ctx context.Context) ([]model.Session, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": model.SessionCompleted}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "interviews",
			"localField":   "interview_id",
			"foreignField": "_id",
			"as":           "interview",
		}}},
		{{Key: "$match", Value: bson.M{
			"interview":        bson.M{"$ne": bson.A{}},
			"interview.status": bson.M{"$ne": model.InterviewCompleted},
		}}},
		{{Key: "$project", Value: bson.M{"interview": 0}}},
		{{Key: "$sort", Value: bson.M{"updated_at": 1}}},
	}
	cur, err := s.sessions.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []model.Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportCompleted builds export-ready results for every completed interview.
func (s *Store) ExportCompleted(ctx context.Context) ([]model.CandidateResult, error) {
	interviews, err := s.ListInterviews(ctx, model.InterviewCompleted)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	var results []model.CandidateResult
	for i := range interviews {
		iv := &interviews[i]
		sess, err := s.FindSession(ctx, iv.ID, iv.UserID)
		if err != nil {
			return nil, fmt.Errorf("get session for interview %s: %w", iv.ID, err)
		}
		user, err := s.GetUserByID(ctx, iv.UserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("get user %s: %w", iv.UserID, err)
		}
		results = append(results, store.BuildCandidateResult(iv, sess, user))
	}
	return results, nil
}

func findOne[T any](ctx context.Context, col *mongo.Collection, filter bson.M) (*T, error) {
	var v T
	if err := col.FindOne(ctx, filter).Decode(&v); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func findAll[T any](ctx context.Context, col *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]T, error) {
	cur, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func wrap(err error, op string) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, store.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
