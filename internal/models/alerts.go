package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"ResQMob/pkg/geo"
)

type AlertType string

const (
	AlertMedical  AlertType = "medical"
	AlertFire     AlertType = "fire"
	AlertPolice   AlertType = "police"
	AlertGeneral  AlertType = "general"
	AlertAccident AlertType = "accident"
	AlertViolence AlertType = "violence"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertMedical, AlertFire, AlertPolice, AlertGeneral, AlertAccident, AlertViolence:
		return true
	}
	return false
}

type AlertStatus string

const (
	AlertActive     AlertStatus = "active"
	AlertResolved   AlertStatus = "resolved"
	AlertFalseAlarm AlertStatus = "false_alarm"
)

// Terminal reports whether the status ends the alert lifecycle.
func (s AlertStatus) Terminal() bool {
	return s == AlertResolved || s == AlertFalseAlarm
}

type ResponderStatus string

const (
	ResponderResponding  ResponderStatus = "responding"
	ResponderArrived     ResponderStatus = "arrived"
	ResponderHelping     ResponderStatus = "helping"
	ResponderUnavailable ResponderStatus = "unavailable"
)

func (s ResponderStatus) Valid() bool {
	switch s {
	case ResponderResponding, ResponderArrived, ResponderHelping, ResponderUnavailable:
		return true
	}
	return false
}

// StringList stores a JSON string array in a single text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("unsupported StringList source: %T", value)
}

// SOS Alert（求助警报）
type Alert struct {
	ID           string      `gorm:"primaryKey;size:36" json:"id"`
	UserID       string      `gorm:"size:36;index" json:"userId"`
	Type         AlertType   `gorm:"size:16" json:"type"`
	UrgencyLevel int         `json:"urgencyLevel"` // 1-5
	Status       AlertStatus `gorm:"size:16;index" json:"status"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Address   string  `gorm:"size:255" json:"address,omitempty"`

	Message string `gorm:"size:500" json:"message,omitempty"`

	EscalationLevel    int     `json:"escalationLevel"`    // starts at 1
	NotificationRadius float64 `json:"notificationRadius"` // meters, never shrinks

	ResponderCount int  `json:"responderCount"`
	Confirmations  int  `json:"confirmations"`
	IsAnonymous    bool `json:"isAnonymous"`

	MediaURLs StringList `gorm:"type:text" json:"mediaUrls,omitempty"`

	Responders []Responder `gorm:"foreignKey:AlertID" json:"responders,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

func (a *Alert) Active() bool { return a.Status == AlertActive }

func (a *Alert) Origin() geo.Point {
	return geo.Point{Latitude: a.Latitude, Longitude: a.Longitude, Accuracy: a.Accuracy, Address: a.Address}
}

// 响应者记录，(AlertID, UserID) 唯一
type Responder struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	AlertID string `gorm:"size:36;uniqueIndex:idx_alert_user" json:"alertId"`
	UserID  string `gorm:"size:36;uniqueIndex:idx_alert_user" json:"userId"`

	Status         ResponderStatus `gorm:"size:16" json:"status"`
	DistanceMeters float64         `json:"distanceMeters"`
	ETAMinutes     int             `json:"etaMinutes,omitempty"` // only set while responding

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// 紧急联系人
type EmergencyContact struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	UserID        string `gorm:"size:36;index" json:"userId"`
	Name          string `gorm:"size:64" json:"name"`
	Phone         string `gorm:"size:32" json:"phone"`
	NotifyEnabled bool   `json:"notifyEnabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// 用户最近一次上报的位置
type UserLocation struct {
	UserID    string  `gorm:"primaryKey;size:36" json:"userId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// 警报协调聊天室，每个警报最多一个
type ChatRoom struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	AlertID      string     `gorm:"size:36;uniqueIndex" json:"alertId"`
	Name         string     `gorm:"size:128" json:"name"`
	Participants StringList `gorm:"type:text" json:"participants"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// 通知投递记录，仅用于观测，不参与状态机
type NotificationRecord struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	AlertID string `gorm:"size:36;index" json:"alertId"`
	UserID  string `gorm:"size:36" json:"userId"`
	Channel string `gorm:"size:8" json:"channel"` // push | sms
	Title   string `gorm:"size:128" json:"title"`
	Outcome string `gorm:"size:16" json:"outcome"` // sent | failed
	Error   string `gorm:"size:255" json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
