package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/learnhub/learnhub-api/internal/model"
)

var (
	// ErrNotFound is returned when no account matches the lookup, including
	// conditional updates whose precondition no longer holds.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateEmail is returned when creating an account with an email
	// that is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserRepository defines the persistence contract for accounts.
//
// The conditional methods (RecordFailedOTPAttempt, RecordFailedResetOTPAttempt,
// MarkVerified, ResetPassword, RotateRefreshToken) take the previously read
// hash or token value and only apply when the stored value still matches, so
// concurrent read-check-write cycles cannot lose updates.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)

	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserWithPassword(ctx context.Context, email string) (*model.User, error)
	GetUserWithOTP(ctx context.Context, email string) (*model.User, error)
	GetUserWithResetOTP(ctx context.Context, email string) (*model.User, error)
	GetUserWithRefreshToken(ctx context.Context, id string) (*model.User, error)
	GetUserByRefreshToken(ctx context.Context, token string) (*model.User, error)

	// ReissueVerificationOTP overwrites the pending verification OTP and
	// consumes one attempt slot.
	ReissueVerificationOTP(ctx context.Context, id, hash string, expiresAt time.Time) (*model.User, error)

	// RecordFailedOTPAttempt increments the verification attempt counter,
	// provided the stored OTP hash still equals prevHash. The updated
	// account is returned.
	RecordFailedOTPAttempt(ctx context.Context, id, prevHash string) (*model.User, error)

	// MarkVerified flips the verified flag and clears the verification OTP
	// state, provided the stored OTP hash still equals prevHash.
	MarkVerified(ctx context.Context, id, prevHash string) error

	// SetResetOTP overwrites the pending reset OTP and resets its attempt
	// counter.
	SetResetOTP(ctx context.Context, id, hash string, expiresAt time.Time) error

	RecordFailedResetOTPAttempt(ctx context.Context, id, prevHash string) (*model.User, error)

	// ResetPassword sets a new password hash and clears the reset OTP state,
	// provided the stored reset OTP hash still equals prevHash.
	ResetPassword(ctx context.Context, id, prevHash, passwordHash string) error

	// SetRefreshToken stores token as the account's sole refresh token,
	// replacing whatever was there.
	SetRefreshToken(ctx context.Context, id, token string) error

	// RotateRefreshToken replaces prev with next, provided prev is still the
	// stored value.
	RotateRefreshToken(ctx context.Context, id, prev, next string) error

	// ClearRefreshTokenByValue removes the stored refresh token matching
	// token. A missing match is not an error.
	ClearRefreshTokenByValue(ctx context.Context, token string) error
}

const userCollection = "users"

// Secret material is stripped from default reads; flows that need a secret
// fetch it through a dedicated getter.
var sanitizedProjection = bson.M{
	"password_hash":  0,
	"otp_hash":       0,
	"reset_otp_hash": 0,
	"refresh_token":  0,
}

type userMongoRepository struct {
	db *mongo.Database
}

// NewUserMongoRepository creates a MongoDB-backed UserRepository and ensures
// the unique email index exists.
func NewUserMongoRepository(ctx context.Context, logger *zerolog.Logger, db *mongo.Database) UserRepository {
	collection := db.Collection(userCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create user indexes")
	}

	return &userMongoRepository{db: db}
}

func (r *userMongoRepository) collection() *mongo.Collection {
	return r.db.Collection(userCollection)
}

func (r *userMongoRepository) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := r.collection().InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	if objectID, ok := result.InsertedID.(bson.ObjectID); ok {
		user.ID = objectID
	} else {
		return nil, errors.New("failed to convert inserted ID to ObjectID")
	}

	return user, nil
}

func (r *userMongoRepository) findOne(
	ctx context.Context,
	filter bson.M,
	opts ...options.Lister[options.FindOneOptions],
) (*model.User, error) {
	result := r.collection().FindOne(ctx, filter, opts...)

	var user model.User
	if err := result.Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &user, nil
}

func idFilter(id string) (bson.M, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return bson.M{"_id": objectID}, nil
}

func (r *userMongoRepository) GetUser(ctx context.Context, id string) (*model.User, error) {
	filter, err := idFilter(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, filter, options.FindOne().SetProjection(sanitizedProjection))
}

func (r *userMongoRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, options.FindOne().SetProjection(sanitizedProjection))
}

func (r *userMongoRepository) GetUserWithPassword(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, options.FindOne().SetProjection(bson.M{
		"otp_hash":       0,
		"reset_otp_hash": 0,
		"refresh_token":  0,
	}))
}

func (r *userMongoRepository) GetUserWithOTP(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, options.FindOne().SetProjection(bson.M{
		"password_hash":  0,
		"reset_otp_hash": 0,
		"refresh_token":  0,
	}))
}

func (r *userMongoRepository) GetUserWithResetOTP(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, options.FindOne().SetProjection(bson.M{
		"password_hash": 0,
		"otp_hash":      0,
		"refresh_token": 0,
	}))
}

func (r *userMongoRepository) GetUserWithRefreshToken(ctx context.Context, id string) (*model.User, error) {
	filter, err := idFilter(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, filter, options.FindOne().SetProjection(bson.M{
		"password_hash":  0,
		"otp_hash":       0,
		"reset_otp_hash": 0,
	}))
}

func (r *userMongoRepository) GetUserByRefreshToken(ctx context.Context, token string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"refresh_token": token}, options.FindOne().SetProjection(bson.M{
		"password_hash":  0,
		"otp_hash":       0,
		"reset_otp_hash": 0,
	}))
}

func (r *userMongoRepository) findOneAndUpdate(
	ctx context.Context,
	filter, update bson.M,
) (*model.User, error) {
	result := r.collection().FindOneAndUpdate(
		ctx,
		filter,
		update,
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(sanitizedProjection),
	)

	var user model.User
	if err := result.Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &user, nil
}

func (r *userMongoRepository) ReissueVerificationOTP(
	ctx context.Context,
	id, hash string,
	expiresAt time.Time,
) (*model.User, error) {
	filter, err := idFilter(id)
	if err != nil {
		return nil, err
	}

	return r.findOneAndUpdate(ctx, filter, bson.M{
		"$set": bson.M{
			"otp_hash":       hash,
			"otp_expires_at": expiresAt,
			"updated_at":     time.Now(),
		},
		"$inc": bson.M{"otp_attempts": 1},
	})
}

func (r *userMongoRepository) RecordFailedOTPAttempt(ctx context.Context, id, prevHash string) (*model.User, error) {
	filter, err := idFilter(id)
	if err != nil {
		return nil, err
	}
	filter["otp_hash"] = prevHash

	return r.findOneAndUpdate(ctx, filter, bson.M{
		"$inc": bson.M{"otp_attempts": 1},
		"$set": bson.M{"updated_at": time.Now()},
	})
}

func (r *userMongoRepository) MarkVerified(ctx context.Context, id, prevHash string) error {
	filter, err := idFilter(id)
	if err != nil {
		return err
	}
	filter["otp_hash"] = prevHash

	_, err = r.findOneAndUpdate(ctx, filter, bson.M{
		"$set": bson.M{
			"verified":     true,
			"otp_attempts": 0,
			"updated_at":   time.Now(),
		},
		"$unset": bson.M{
			"otp_hash":       "",
			"otp_expires_at": "",
		},
	})
	return err
}

func (r *userMongoRepository) SetResetOTP(ctx context.Context, id, hash string, expiresAt time.Time) error {
	filter, err := idFilter(id)
	if err != nil {
		return err
	}

	_, err = r.findOneAndUpdate(ctx, filter, bson.M{
		"$set": bson.M{
			"reset_otp_hash":       hash,
			"reset_otp_expires_at": expiresAt,
			"reset_otp_attempts":   0,
			"updated_at":           time.Now(),
		},
	})
	return err
}

func (r *userMongoRepository) RecordFailedResetOTPAttempt(ctx context.Context, id, prevHash string) (*model.User, error) {
	filter, err := idFilter(id)
	if err != nil {
		return nil, err
	}
	filter["reset_otp_hash"] = prevHash

	return r.findOneAndUpdate(ctx, filter, bson.M{
		"$inc": bson.M{"reset_otp_attempts": 1},
		"$set": bson.M{"updated_at": time.Now()},
	})
}

func (r *userMongoRepository) ResetPassword(ctx context.Context, id, prevHash, passwordHash string) error {
	filter, err := idFilter(id)
	if err != nil {
		return err
	}
	filter["reset_otp_hash"] = prevHash

	_, err = r.findOneAndUpdate(ctx, filter, bson.M{
		"$set": bson.M{
			"password_hash":      passwordHash,
			"reset_otp_attempts": 0,
			"updated_at":         time.Now(),
		},
		"$unset": bson.M{
			"reset_otp_hash":       "",
			"reset_otp_expires_at": "",
		},
	})
	return err
}

func (r *userMongoRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	filter, err := idFilter(id)
	if err != nil {
		return err
	}

	_, err = r.findOneAndUpdate(ctx, filter, bson.M{
		"$set": bson.M{
			"refresh_token": token,
			"updated_at":    time.Now(),
		},
	})
	return err
}

func (r *userMongoRepository) RotateRefreshToken(ctx context.Context, id, prev, next string) error {
	filter, err := idFilter(id)
	if err != nil {
		return err
	}
	filter["refresh_token"] = prev

	_, err = r.findOneAndUpdate(ctx, filter, bson.M{
		"$set": bson.M{
			"refresh_token": next,
			"updated_at":    time.Now(),
		},
	})
	return err
}

func (r *userMongoRepository) ClearRefreshTokenByValue(ctx context.Context, token string) error {
	_, err := r.collection().UpdateOne(
		ctx,
		bson.M{"refresh_token": token},
		bson.M{
			"$unset": bson.M{"refresh_token": ""},
			"$set":   bson.M{"updated_at": time.Now()},
		},
	)
	return err
}
