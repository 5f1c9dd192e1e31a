package model

import "time"

// User represents an account record as stored in the `users` table.
// Only the columns the auth and reaction flows read are mapped here;
// profile CRUD lives elsewhere.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Login        – unique public login.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  IsConfirmed  – whether the email confirmation flow completed.
//  IsBanned     – super-admin ban flag; banned users cannot log in.
//  BanReason    – reason given by the super admin (nil when not banned).
//  BanDate      – when the ban was applied (nil when not banned).
//  CreatedAt    – timestamp of creation.
type User struct {
	ID           uint64     // users.id
	Login        string     // users.login
	Email        string     // users.email
	PasswordHash string     // users.password_hash
	IsConfirmed  bool       // users.is_confirmed
	IsBanned     bool       // users.is_banned
	BanReason    *string    // users.ban_reason (nullable)
	BanDate      *time.Time // users.ban_date (nullable)
	CreatedAt    time.Time  // users.created_at
}
