package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/ycchuang/chat-server/internal/model"
)

var (
	// ErrRequestNotFound is returned when no pending request exists in
	// the required direction.
	ErrRequestNotFound = errors.New("friend request not found")
	// ErrFriendshipNotFound is returned when no relationship row exists
	// for the (unordered) pair.
	ErrFriendshipNotFound = errors.New("friend relationship not found")
	// ErrPairExists is returned when an insert collides with an
	// existing row for the unordered pair.
	ErrPairExists = errors.New("friend relationship already exists")
)

// FriendRepo drives the relationship state machine on the
// `user_friends` table.  One row per unordered pair: (user_id,
// friend_id) is the request direction while pending and becomes
// symmetric once accepted.
type FriendRepo struct{ DB *sql.DB }

func NewFriendRepo(db *sql.DB) *FriendRepo { return &FriendRepo{DB: db} }

const friendshipColumns = "id,user_id,friend_id,status,chatroom_id,created_at,updated_at"

// GetPair returns the live relationship row for the unordered pair
// (a, b), querying both directions.  sql.ErrNoRows when none exists.
func (r *FriendRepo) GetPair(ctx context.Context, a, b string) (model.Friendship, error) {
	return scanFriendship(r.DB.QueryRowContext(ctx,
		`SELECT `+friendshipColumns+` FROM user_friends
		 WHERE (user_id=? AND friend_id=?) OR (user_id=? AND friend_id=?)
		 LIMIT 1`,
		a, b, b, a))
}

// CreateRequest inserts a new pending row requester -> target.  The
// caller performs the duplicate checks, but two first requests racing
// in opposite directions both pass them, and an ordered unique index
// on (user_id, friend_id) would not stop the reverse insert.  The
// schema therefore keeps a unique key over the normalized pair,
// generated as (LEAST(user_id, friend_id), GREATEST(user_id,
// friend_id)), so the loser's insert collides regardless of direction
// and surfaces as ErrPairExists.
func (r *FriendRepo) CreateRequest(ctx context.Context, requesterID, targetID string) (model.Friendship, error) {
	id := uuid.NewString()
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO user_friends (id, user_id, friend_id, status) VALUES (?,?,?,?)",
		id, requesterID, targetID, model.FriendStatusPending)
	if err != nil {
		if isDuplicate(err) {
			return model.Friendship{}, ErrPairExists
		}
		return model.Friendship{}, err
	}
	return r.getByID(ctx, id)
}

// Accept transitions the pending row requester -> accepter to
// accepted, recording the chatroom reference (nil when provisioning
// failed and is left to the reconciler).  The pending row is locked
// with SELECT ... FOR UPDATE and the transition is additionally
// guarded by a conditional update, so two concurrent accepts on the
// same row resolve to a single winner; the loser gets
// ErrRequestNotFound.
func (r *FriendRepo) Accept(ctx context.Context, requesterID, accepterID string, chatroomID *string) (model.Friendship, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Friendship{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM user_friends WHERE user_id=? AND friend_id=? AND status=? LIMIT 1 FOR UPDATE",
		requesterID, accepterID, model.FriendStatusPending).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Friendship{}, ErrRequestNotFound
		}
		return model.Friendship{}, err
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE user_friends SET status=?, chatroom_id=?, updated_at=NOW() WHERE id=? AND status=?",
		model.FriendStatusAccepted, chatroomID, id, model.FriendStatusPending)
	if err != nil {
		return model.Friendship{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Friendship{}, ErrRequestNotFound
	}

	f, err := scanFriendship(tx.QueryRowContext(ctx,
		"SELECT "+friendshipColumns+" FROM user_friends WHERE id=? LIMIT 1", id))
	if err != nil {
		return model.Friendship{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Friendship{}, err
	}
	return f, nil
}

// DeletePair removes the relationship row for the unordered pair,
// covering both reject (pending row) and remove (accepted row).
func (r *FriendRepo) DeletePair(ctx context.Context, a, b string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM user_friends WHERE (user_id=? AND friend_id=?) OR (user_id=? AND friend_id=?)",
		a, b, b, a)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

// DeletePending removes only a pending request sent by requesterID to
// accepterID, used by reject so an accepted friendship cannot be torn
// down through the reject endpoint.
func (r *FriendRepo) DeletePending(ctx context.Context, requesterID, accepterID string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM user_friends WHERE user_id=? AND friend_id=? AND status=?",
		requesterID, accepterID, model.FriendStatusPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// ListFriends returns the accepted counterparts of userID.  The row may
// hold the user in either column, so the join picks the other side.
func (r *FriendRepo) ListFriends(ctx context.Context, userID string) ([]model.Friend, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT u.id, u.name, u.email, uf.chatroom_id
		 FROM user_friends uf
		 JOIN user u ON u.id = IF(uf.user_id=?, uf.friend_id, uf.user_id)
		 WHERE (uf.user_id=? OR uf.friend_id=?) AND uf.status=?
		 ORDER BY u.name, u.email`,
		userID, userID, userID, model.FriendStatusAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	friends := []model.Friend{}
	for rows.Next() {
		var (
			f        model.Friend
			chatroom sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Email, &chatroom); err != nil {
			return nil, err
		}
		if chatroom.Valid {
			c := chatroom.String
			f.ChatroomID = &c
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// ListIncoming returns the pending requests addressed to userID.
func (r *FriendRepo) ListIncoming(ctx context.Context, userID string) ([]model.FriendRequest, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT u.id, u.name, u.email, uf.id
		 FROM user_friends uf
		 JOIN user u ON u.id = uf.user_id
		 WHERE uf.friend_id=? AND uf.status=?
		 ORDER BY uf.created_at`,
		userID, model.FriendStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []model.FriendRequest{}
	for rows.Next() {
		var fr model.FriendRequest
		if err := rows.Scan(&fr.ID, &fr.Name, &fr.Email, &fr.RequestID); err != nil {
			return nil, err
		}
		requests = append(requests, fr)
	}
	return requests, rows.Err()
}

// SetChatroom fills in the conversation reference on an accepted row
// that is still missing one.  It reports whether the update applied,
// so the provisioning reconciler can tell a completed retry from a
// row someone else already repaired.
func (r *FriendRepo) SetChatroom(ctx context.Context, friendshipID, chatroomID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE user_friends SET chatroom_id=?, updated_at=NOW() WHERE id=? AND status=? AND chatroom_id IS NULL",
		chatroomID, friendshipID, model.FriendStatusAccepted)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *FriendRepo) getByID(ctx context.Context, id string) (model.Friendship, error) {
	return scanFriendship(r.DB.QueryRowContext(ctx,
		"SELECT "+friendshipColumns+" FROM user_friends WHERE id=? LIMIT 1", id))
}

func scanFriendship(row *sql.Row) (model.Friendship, error) {
	var (
		f        model.Friendship
		chatroom sql.NullString
	)
	err := row.Scan(&f.ID, &f.UserID, &f.FriendID, &f.Status, &chatroom, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return model.Friendship{}, err
	}
	if chatroom.Valid {
		c := chatroom.String
		f.ChatroomID = &c
	}
	return f, nil
}
