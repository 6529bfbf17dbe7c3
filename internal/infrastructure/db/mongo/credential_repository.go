package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/identity-service/internal/core/domain"
)

const usersCollection = "identity_users"

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Compare(hash, plaintext string) (bool, error)
}

// CredentialRepository implements ports.CredentialStore. Every write bumps the
// document version; UpdateCredential only applies when the version read by
// the caller is still current.
type CredentialRepository struct {
	coll     *mongo.Collection
	verifier PasswordVerifier
	now      func() time.Time
}

func NewCredentialRepository(db *mongo.Database, verifier PasswordVerifier) *CredentialRepository {
	return &CredentialRepository{
		coll:     db.Collection(usersCollection),
		verifier: verifier,
		now:      time.Now,
	}
}

type mongoUser struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Email            string             `bson:"email"`
	PasswordHash     string             `bson:"password_hash"`
	Roles            []string           `bson:"roles"`
	SecurityStamp    string             `bson:"security_stamp"`
	FailedAttempts   int                `bson:"failed_attempts"`
	LockoutUntil     *time.Time         `bson:"lockout_until,omitempty"`
	LockoutPermanent bool               `bson:"lockout_permanent"`
	Version          int64              `bson:"version"`
	CreatedAt        int64              `bson:"created_at"`
	UpdatedAt        int64              `bson:"updated_at"`
}

// EnsureIndexes creates the unique email index. It is idempotent.
func (r *CredentialRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_email"),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	doc := fromDomain(user)
	doc.ID = primitive.NilObjectID
	if doc.SecurityStamp == "" {
		doc.SecurityStamp = newSecurityStamp()
	}
	doc.Version = 1

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return toDomain(doc), nil
}

func (r *CredentialRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid}, nil)
}

func (r *CredentialRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, nil)
}

// FindSecurityStamp reads only the stamp field.
func (r *CredentialRepository) FindSecurityStamp(ctx context.Context, id string) (string, error) {
	oid, err := parseID(id)
	if err != nil {
		return "", err
	}
	u, err := r.findOne(ctx, bson.M{"_id": oid}, bson.M{"security_stamp": 1})
	if err != nil {
		return "", err
	}
	return u.SecurityStamp, nil
}

func (r *CredentialRepository) VerifyPassword(_ context.Context, user *domain.User, plaintext string) (bool, error) {
	return r.verifier.Compare(user.PasswordHash, plaintext)
}

func (r *CredentialRepository) GetFailedAttemptCount(ctx context.Context, user *domain.User) (int, error) {
	oid, err := parseID(user.ID)
	if err != nil {
		return 0, err
	}
	u, err := r.findOne(ctx, bson.M{"_id": oid}, bson.M{"failed_attempts": 1})
	if err != nil {
		return 0, err
	}
	return u.FailedAttempts, nil
}

// IncrementFailedAttempt uses $inc so concurrent failures are never lost.
func (r *CredentialRepository) IncrementFailedAttempt(ctx context.Context, user *domain.User) (int, error) {
	oid, err := parseID(user.ID)
	if err != nil {
		return 0, err
	}

	update := bson.M{
		"$inc": bson.M{"failed_attempts": 1, "version": 1},
		"$set": bson.M{"updated_at": r.now().UTC().Unix()},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"failed_attempts": 1, "version": 1})

	var mu mongoUser
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}
	user.FailedAttempts = mu.FailedAttempts
	user.Version = mu.Version
	return mu.FailedAttempts, nil
}

// ResetFailedAttemptCount zeroes the counter and drops any lockout deadline.
// The permanent flag is left alone.
func (r *CredentialRepository) ResetFailedAttemptCount(ctx context.Context, user *domain.User) error {
	return r.updateByID(ctx, "reset failed attempts", user, bson.M{
		"$set":   bson.M{"failed_attempts": 0},
		"$unset": bson.M{"lockout_until": ""},
	})
}

func (r *CredentialRepository) SetLockout(ctx context.Context, user *domain.User, lockout domain.Lockout) error {
	set := bson.M{"lockout_permanent": lockout.Permanent}
	update := bson.M{"$set": set}
	if lockout.Until != nil {
		set["lockout_until"] = lockout.Until.UTC()
	} else {
		update["$unset"] = bson.M{"lockout_until": ""}
	}
	return r.updateByID(ctx, "set lockout", user, update)
}

func (r *CredentialRepository) RotateSecurityStamp(ctx context.Context, user *domain.User) (string, error) {
	stamp := newSecurityStamp()
	if err := r.updateByID(ctx, "rotate security stamp", user, bson.M{
		"$set": bson.M{"security_stamp": stamp},
	}); err != nil {
		return "", err
	}
	user.SecurityStamp = stamp
	return stamp, nil
}

func (r *CredentialRepository) GetRoles(ctx context.Context, user *domain.User) ([]string, error) {
	oid, err := parseID(user.ID)
	if err != nil {
		return nil, err
	}
	u, err := r.findOne(ctx, bson.M{"_id": oid}, bson.M{"roles": 1})
	if err != nil {
		return nil, err
	}
	return u.Roles, nil
}

// UpdateCredential replaces the password hash if the document still carries
// user.Version. A stale version yields domain.ErrConcurrentUpdate.
func (r *CredentialRepository) UpdateCredential(ctx context.Context, user *domain.User, newHash string) error {
	oid, err := parseID(user.ID)
	if err != nil {
		return err
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "version": user.Version},
		bson.M{
			"$set": bson.M{"password_hash": newHash, "updated_at": r.now().UTC().Unix()},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": oid})
		if err != nil {
			return fmt.Errorf("update credential: %w", err)
		}
		if n == 0 {
			return domain.ErrUserNotFound
		}
		return domain.ErrConcurrentUpdate
	}

	user.PasswordHash = newHash
	user.Version++
	return nil
}

func (r *CredentialRepository) findOne(ctx context.Context, filter bson.M, projection bson.M) (*domain.User, error) {
	opts := options.FindOne()
	if projection != nil {
		opts.SetProjection(projection)
	}

	var mu mongoUser
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return toDomain(&mu), nil
}

// updateByID applies update to the user document, bumping version and
// updated_at.
func (r *CredentialRepository) updateByID(ctx context.Context, op string, user *domain.User, update bson.M) error {
	oid, err := parseID(user.ID)
	if err != nil {
		return err
	}

	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
		update["$set"] = set
	}
	set["updated_at"] = r.now().UTC().Unix()
	update["$inc"] = bson.M{"version": 1}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, domain.ErrUserNotFound
	}
	return oid, nil
}

func newSecurityStamp() string {
	return ksuid.New().String()
}

func fromDomain(u *domain.User) *mongoUser {
	doc := &mongoUser{
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		Roles:            u.Roles,
		SecurityStamp:    u.SecurityStamp,
		FailedAttempts:   u.FailedAttempts,
		LockoutUntil:     u.LockoutUntil,
		LockoutPermanent: u.LockoutPermanent,
		Version:          u.Version,
		CreatedAt:        timeToUnix(u.CreatedAt),
		UpdatedAt:        timeToUnix(u.UpdatedAt),
	}
	if oid, err := primitive.ObjectIDFromHex(u.ID); err == nil {
		doc.ID = oid
	}
	return doc
}

func toDomain(mu *mongoUser) *domain.User {
	u := &domain.User{
		Email:            mu.Email,
		PasswordHash:     mu.PasswordHash,
		Roles:            mu.Roles,
		SecurityStamp:    mu.SecurityStamp,
		FailedAttempts:   mu.FailedAttempts,
		LockoutUntil:     mu.LockoutUntil,
		LockoutPermanent: mu.LockoutPermanent,
		Version:          mu.Version,
		CreatedAt:        unixToTime(mu.CreatedAt),
		UpdatedAt:        unixToTime(mu.UpdatedAt),
	}
	if !mu.ID.IsZero() {
		u.ID = mu.ID.Hex()
	}
	return u
}

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
