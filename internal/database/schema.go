package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables used by the service.  Seats are owned by their
// venue and go away with it.  Bookings have no foreign key on venue or seat:
// they are the audit trail and must outlive a deleted venue.  The generated
// active_* columns are NULL once a booking completes, so the unique keys
// allow at most one active booking per seat and one active library booking
// per user.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name          VARCHAR(120) NOT NULL,
		email         VARCHAR(190) NOT NULL,
		password_hash VARCHAR(100) NOT NULL,
		role          VARCHAR(16)  NOT NULL DEFAULT 'STUDENT',
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS user_skills (
		user_id BIGINT UNSIGNED NOT NULL,
		skill   VARCHAR(64)     NOT NULL,
		PRIMARY KEY (user_id, skill),
		KEY idx_user_skills_skill (skill),
		CONSTRAINT fk_user_skills_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64)        NOT NULL,
		expires_at DATETIME        NOT NULL,
		revoked_at DATETIME        NULL,
		created_at DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_refresh_tokens_hash (token_hash),
		CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS venues (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		kind        ENUM('library','event') NOT NULL,
		name        VARCHAR(200)  NOT NULL,
		total_seats INT UNSIGNED  NOT NULL,
		floor       VARCHAR(64)   NOT NULL DEFAULT '',
		description VARCHAR(1000) NOT NULL DEFAULT '',
		category    VARCHAR(64)   NOT NULL DEFAULT '',
		location    VARCHAR(200)  NOT NULL DEFAULT '',
		starts_at   DATETIME      NULL,
		created_at  DATETIME      NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_venues_kind_starts (kind, starts_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seats (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		venue_id    BIGINT UNSIGNED NOT NULL,
		row_label   VARCHAR(4)      NOT NULL DEFAULT '',
		seat_number INT UNSIGNED    NOT NULL,
		price       DECIMAL(10,2)   NOT NULL DEFAULT 0,
		occupied    TINYINT(1)      NOT NULL DEFAULT 0,
		occupant_id BIGINT UNSIGNED NULL,
		occupied_at DATETIME(6)     NULL,
		booking_id  BIGINT UNSIGNED NULL,
		version     BIGINT UNSIGNED NOT NULL DEFAULT 0,
		UNIQUE KEY uq_seats_position (venue_id, row_label, seat_number),
		CONSTRAINT fk_seats_venue FOREIGN KEY (venue_id) REFERENCES venues (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id     BIGINT UNSIGNED NOT NULL,
		kind        ENUM('library','event') NOT NULL,
		venue_id    BIGINT UNSIGNED NOT NULL,
		seat_id     BIGINT UNSIGNED NOT NULL,
		row_label   VARCHAR(4)      NOT NULL DEFAULT '',
		seat_index  INT UNSIGNED    NOT NULL,
		seat_number VARCHAR(16)     NOT NULL,
		status      ENUM('active','completed') NOT NULL DEFAULT 'active',
		price       DECIMAL(10,2)   NOT NULL DEFAULT 0,
		booked_at   DATETIME(6)     NOT NULL,
		left_at     DATETIME(6)     NULL,
		active_seat BIGINT UNSIGNED AS (IF(status = 'active', seat_id, NULL)) STORED,
		active_library_user BIGINT UNSIGNED AS (IF(status = 'active' AND kind = 'library', user_id, NULL)) STORED,
		UNIQUE KEY uq_bookings_active_seat (active_seat),
		UNIQUE KEY uq_bookings_active_library_user (active_library_user),
		KEY idx_bookings_user_status (user_id, status, booked_at),
		KEY idx_bookings_venue_status (venue_id, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.  Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
