package models

import "time"

// User представляет пользователя (сотрудника больницы) на сервере
type User struct {
	CreatedAt    time.Time  `json:"created_at"`    // время создания
	LastLogin    *time.Time `json:"last_login"`    // время последнего входа
	ID           string     `json:"id"`            // UUID пользователя
	Username     string     `json:"username"`      // уникальный username
	PasswordHash string     `json:"password_hash"` // bcrypt хеш пароля
	HospitalID   string     `json:"hospital_id"`   // больница, к которой привязан пользователь
	Role         string     `json:"role"`          // doctor, nurse, admin
}

// Роли пользователей
const (
	RoleDoctor = "doctor"
	RoleNurse  = "nurse"
	RoleAdmin  = "admin"
)
