package database

const (
	// Account queries
	queryGetActiveAccounts = `
		SELECT a.id, a.name, a.email, a.password_hash, a.avatar_url, a.is_admin,
		       COALESCE(b.balance, 0), a.created_at, a.updated_at
		FROM accounts a
		LEFT JOIN coin_balances b ON b.account_id = a.id
		WHERE a.active = 1
		ORDER BY a.created_at`

	queryInsertAccount = `
		INSERT INTO accounts (id, name, email, password_hash, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetAccountById = `
		SELECT a.id, a.name, a.email, a.password_hash, a.avatar_url, a.is_admin,
		       COALESCE(b.balance, 0), a.created_at, a.updated_at
		FROM accounts a
		LEFT JOIN coin_balances b ON b.account_id = a.id
		WHERE a.id = ? AND a.active = 1`

	queryGetAccountByEmail = `
		SELECT a.id, a.name, a.email, a.password_hash, a.avatar_url, a.is_admin,
		       COALESCE(b.balance, 0), a.created_at, a.updated_at
		FROM accounts a
		LEFT JOIN coin_balances b ON b.account_id = a.id
		WHERE LOWER(a.email) = LOWER(?) AND a.active = 1`

	queryNameTaken = `
		SELECT COUNT(*) FROM accounts WHERE name = ? COLLATE NOCASE AND id != ?`

	queryUpdateProfile = `
		UPDATE accounts SET name = ?, avatar_url = ?, updated_at = ?
		WHERE id = ? AND active = 1`

	// Balance queries
	queryGetBalance = `
		SELECT balance
		FROM coin_balances
		WHERE account_id = ?`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(amount), 0) as calculated_balance
		FROM coin_transactions
		WHERE account_id = ?`

	queryInsertCoinBalance = `
		INSERT INTO coin_balances (account_id, balance, version, updated_at)
		VALUES (?, 0, 1, ?)`

	// Transaction queries
	queryCheckDuplicateTransaction = `
		SELECT id FROM coin_transactions WHERE reference = ? LIMIT 1`

	queryGetCoinBalance = `
		SELECT balance, version
		FROM coin_balances
		WHERE account_id = ?`

	queryInsertTransaction = `
		INSERT INTO coin_transactions (
			id, account_id, kind, amount, balance_before, balance_after, reference, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateCoinBalance = `
		UPDATE coin_balances
		SET balance = ?, last_transaction_id = ?, version = version + 1, updated_at = ?
		WHERE account_id = ? AND version = ?`

	queryGetTransactionHistory = `
		SELECT id, account_id, kind, amount, balance_before, balance_after, reference, reason, created_at
		FROM coin_transactions
		WHERE account_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	// Question and answer queries
	queryInsertQuestion = `
		INSERT INTO questions (id, author_id, title, body, audio_ref, tags, visibility, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	querySelectQuestion = `
		SELECT q.id, COALESCE(q.author_id, ''), q.title, q.body, q.audio_ref, q.tags, q.visibility,
		       (SELECT COUNT(*) FROM likes l WHERE l.question_id = q.id),
		       (SELECT COUNT(*) FROM answers a WHERE a.question_id = q.id),
		       q.created_at
		FROM questions q`

	queryGetQuestion = querySelectQuestion + `
		WHERE q.id = ?`

	queryDeleteQuestion = `
		DELETE FROM questions WHERE id = ?`

	queryInsertAnswer = `
		INSERT INTO answers (id, question_id, author_id, body, audio_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetAnswer = `
		SELECT id, question_id, author_id, body, audio_ref, created_at
		FROM answers
		WHERE id = ?`

	queryListAnswers = `
		SELECT id, question_id, author_id, body, audio_ref, created_at
		FROM answers
		WHERE question_id = ?
		ORDER BY created_at, rowid`

	queryDeleteAnswer = `
		DELETE FROM answers WHERE id = ?`

	// Engagement queries
	queryInsertLike = `
		INSERT INTO likes (account_id, question_id, created_at) VALUES (?, ?, ?)`

	queryDeleteLike = `
		DELETE FROM likes WHERE account_id = ? AND question_id = ?`

	queryHasLike = `
		SELECT COUNT(*) FROM likes WHERE account_id = ? AND question_id = ?`

	queryListQuestionLikes = `
		SELECT account_id FROM likes WHERE question_id = ?`

	queryDeleteQuestionLikes = `
		DELETE FROM likes WHERE question_id = ?`

	queryInsertFollow = `
		INSERT INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?)`

	queryDeleteFollow = `
		DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`

	queryIsFollowing = `
		SELECT COUNT(*) FROM follows WHERE follower_id = ? AND followee_id = ?`

	// Message queries
	queryInsertMessage = `
		INSERT INTO messages (id, sender_id, recipient_id, body, sent_at, purge_marked)
		VALUES (?, ?, ?, ?, ?, 0)`

	queryGetMessageState = `
		SELECT recipient_id, read_at, purge_marked FROM messages WHERE id = ?`

	queryMarkMessageRead = `
		UPDATE messages SET read_at = ? WHERE id = ? AND read_at IS NULL`

	queryMarkMessageForPurge = `
		UPDATE messages SET purge_marked = 1 WHERE id = ?`

	queryListMessages = `
		SELECT id, sender_id, recipient_id, body, sent_at, read_at, purge_marked
		FROM messages
		WHERE recipient_id = ? OR sender_id = ?
		ORDER BY sent_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	querySelectPurgeable = `
		SELECT id, recipient_id FROM messages
		WHERE read_at IS NOT NULL AND purge_marked = 1`

	queryDeleteMessage = `
		DELETE FROM messages WHERE id = ? AND read_at IS NOT NULL AND purge_marked = 1`

	// Notification queries
	queryInsertNotification = `
		INSERT INTO notifications (id, recipient_id, actor_id, question_id, answer_id, type, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`

	queryListNotifications = `
		SELECT id, recipient_id, actor_id, question_id, answer_id, type, is_read, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	querySelectNotificationsForAnswer = `
		SELECT id, recipient_id, is_read FROM notifications WHERE answer_id = ?`

	querySelectNotificationsForQuestion = `
		SELECT id, recipient_id, is_read FROM notifications WHERE question_id = ?`

	queryDeleteNotification = `
		DELETE FROM notifications WHERE id = ?`

	queryMarkNotificationRead = `
		UPDATE notifications SET is_read = 1 WHERE id = ? AND is_read = 0`

	// Change log queries
	queryInsertChange = `
		INSERT INTO change_events (
			id, relation, event_type, entity_id, account_id, parent_id,
			before_exists, before_unread, after_exists, after_unread, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryListChangesSince = `
		SELECT seq, id, relation, event_type, entity_id, account_id, parent_id,
		       before_exists, before_unread, after_exists, after_unread, created_at
		FROM change_events
		WHERE seq > ?
		ORDER BY seq
		LIMIT ?`

	queryLatestChangeSeq = `
		SELECT COALESCE(MAX(seq), 0) FROM change_events`
)
