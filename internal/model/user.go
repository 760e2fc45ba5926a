package model

type ProfileImage struct {
	URL      string `json:"url" bson:"url"`
	PublicID string `json:"publicId,omitempty" bson:"publicId,omitempty"`
}

// UserProfile: публичные поля пользователя, которые чат подставляет в участников и отправителей.
// Каталог пользователей принадлежит другому сервису; здесь он только читается.
type UserProfile struct {
	ID               string         `json:"id" bson:"_id"`
	FName            string         `json:"fname" bson:"fname"`
	LName            string         `json:"lname" bson:"lname"`
	Email            string         `json:"email" bson:"email"`
	UserProfileImage ProfileImage   `json:"userProfileImage" bson:"userProfileImage"`
	Role             string         `json:"role" bson:"role"`
	BusinessInfo     map[string]any `json:"businessInfo,omitempty" bson:"businessInfo,omitempty"`
}

// DisplayName is used in push notification titles.
func (u *UserProfile) DisplayName() string {
	switch {
	case u.FName != "" && u.LName != "":
		return u.FName + " " + u.LName
	case u.FName != "":
		return u.FName
	default:
		return u.Email
	}
}
