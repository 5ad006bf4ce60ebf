package dto

// NotificationListQuery pages through a student's notifications.
type NotificationListQuery struct {
	Page     int `form:"page" validate:"omitempty,min=1"`
	PageSize int `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// MarkReadResponse reports how many notifications were marked read.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}
