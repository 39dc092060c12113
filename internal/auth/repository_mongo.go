package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UsersCollection keeps the collection name of the original deployment so
// existing documents stay readable.
const UsersCollection = "users"

type accountDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Name       string             `bson:"name"`
	Email      string             `bson:"email"`
	Password   string             `bson:"password"`
	IsVerified bool               `bson:"isVerified"`
	OTP        *string            `bson:"otp,omitempty"`
	OTPExpiry  *time.Time         `bson:"otpExpiry,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt"`
}

func (d accountDocument) account() *Account {
	return &Account{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.Password,
		IsVerified:   d.IsVerified,
		OTP:          d.OTP,
		OTPExpiry:    d.OTPExpiry,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type MongoStore struct {
	Coll *mongo.Collection
	Now  func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{Coll: db.Collection(UsersCollection), Now: time.Now}
}

// EnsureIndexes creates the unique email index that backs the
// verified-account guard of CreateOrReplacePending.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_1"),
	})
	if err != nil {
		return oops.In("account_store").Wrapf(err, "create email index")
	}
	return nil
}

func (s *MongoStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	var found *Account
	err := retryRead(ctx, func(ctx context.Context) error {
		var doc accountDocument
		err := s.Coll.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			found = nil
			return nil
		}
		if err != nil {
			return err
		}
		found = doc.account()
		return nil
	})
	if err != nil {
		return nil, oops.In("account_store").With("email", email).Wrapf(err, "find account")
	}
	return found, nil
}

func (s *MongoStore) CreateOrReplacePending(ctx context.Context, p PendingAccount) (*Account, error) {
	now := s.Now().UTC()
	expiry := p.OTPExpiry.UTC()

	// A verified document never matches the filter, so the upsert tries to
	// insert a second document with the same email and hits the unique index.
	filter := bson.M{"email": p.Email, "isVerified": bson.M{"$ne": true}}
	update := bson.M{
		"$set": bson.M{
			"name":       p.Name,
			"password":   p.PasswordHash,
			"isVerified": false,
			"otp":        p.OTPDigest,
			"otpExpiry":  expiry,
			"updatedAt":  now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	// A duplicate key also comes back when a concurrent first registration
	// inserted the pending document between our filter and our insert. That
	// document matches the filter now, so one more attempt settles it.
	for attempt := 0; ; attempt++ {
		var doc accountDocument
		err := s.Coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if err == nil {
			return doc.account(), nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, oops.In("account_store").With("email", p.Email).Wrapf(err, "upsert pending account")
		}

		existing, findErr := s.FindByEmail(ctx, p.Email)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil && existing.IsVerified {
			return nil, ErrAlreadyVerified
		}
		if attempt > 0 {
			return nil, oops.In("account_store").With("email", p.Email).Wrapf(err, "upsert pending account")
		}
	}
}

func (s *MongoStore) Save(ctx context.Context, a *Account, expectedOTP string) error {
	id, err := primitive.ObjectIDFromHex(a.ID)
	if err != nil {
		return oops.In("account_store").With("id", a.ID).Wrapf(err, "parse account id")
	}

	a.UpdatedAt = s.Now().UTC()
	set := bson.M{
		"name":       a.Name,
		"email":      a.Email,
		"password":   a.PasswordHash,
		"isVerified": a.IsVerified,
		"updatedAt":  a.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if a.OTP != nil && a.OTPExpiry != nil {
		set["otp"] = *a.OTP
		set["otpExpiry"] = a.OTPExpiry.UTC()
	} else {
		update["$unset"] = bson.M{"otp": "", "otpExpiry": ""}
	}

	res, err := s.Coll.UpdateOne(ctx, bson.M{"_id": id, "otp": expectedOTP}, update)
	if err != nil {
		return oops.In("account_store").With("id", a.ID).Wrapf(err, "save account")
	}
	if res.MatchedCount == 0 {
		return ErrStaleAccount
	}
	return nil
}

func (s *MongoStore) ListVerified(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := retryRead(ctx, func(ctx context.Context) error {
		opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
		cur, err := s.Coll.Find(ctx, bson.M{"isVerified": true}, opts)
		if err != nil {
			return err
		}
		var docs []accountDocument
		if err := cur.All(ctx, &docs); err != nil {
			return err
		}
		accounts = make([]Account, 0, len(docs))
		for _, d := range docs {
			accounts = append(accounts, *d.account())
		}
		return nil
	})
	if err != nil {
		return nil, oops.In("account_store").Wrapf(err, "list verified accounts")
	}
	return accounts, nil
}
