package store

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'STUDENT',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL CHECK (duration > 0),
		is_active BOOLEAN NOT NULL DEFAULT 0,
		created_by INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (created_by) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		text TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('MCQ', 'SHORT_ANSWER')),
		points INTEGER NOT NULL DEFAULT 1 CHECK (points >= 0),
		keywords TEXT NOT NULL DEFAULT '[]',
		FOREIGN KEY (exam_id) REFERENCES exams(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS options (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		text TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL DEFAULT 0,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		score INTEGER,
		status TEXT NOT NULL DEFAULT 'IN_PROGRESS',
		late BOOLEAN NOT NULL DEFAULT 0,
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (student_id) REFERENCES users(id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS submissions_one_in_progress
		ON submissions (exam_id, student_id) WHERE status = 'IN_PROGRESS';

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		selected_option_id INTEGER,
		text_answer TEXT,
		is_correct BOOLEAN,
		points_awarded INTEGER NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (submission_id) REFERENCES submissions(id) ON DELETE CASCADE,
		FOREIGN KEY (question_id) REFERENCES questions(id),
		FOREIGN KEY (selected_option_id) REFERENCES options(id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'SYSTEM',
		is_read BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'STUDENT',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL CHECK (duration > 0),
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_by BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id BIGSERIAL PRIMARY KEY,
		exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
		position INTEGER NOT NULL DEFAULT 0,
		text TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('MCQ', 'SHORT_ANSWER')),
		points INTEGER NOT NULL DEFAULT 1 CHECK (points >= 0),
		keywords TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS options (
		id BIGSERIAL PRIMARY KEY,
		question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL DEFAULT 0,
		text TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id BIGSERIAL PRIMARY KEY,
		exam_id BIGINT NOT NULL REFERENCES exams(id),
		student_id BIGINT NOT NULL REFERENCES users(id),
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		score INTEGER,
		status TEXT NOT NULL DEFAULT 'IN_PROGRESS',
		late BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS submissions_one_in_progress
		ON submissions (exam_id, student_id) WHERE status = 'IN_PROGRESS';

	CREATE TABLE IF NOT EXISTS answers (
		id BIGSERIAL PRIMARY KEY,
		submission_id BIGINT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
		question_id BIGINT NOT NULL REFERENCES questions(id),
		selected_option_id BIGINT REFERENCES options(id),
		text_answer TEXT,
		is_correct BOOLEAN,
		points_awarded INTEGER NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'SYSTEM',
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at TIMESTAMPTZ NOT NULL
	);
	`
