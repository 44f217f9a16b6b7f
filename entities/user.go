package entities

type User struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Email     string `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Username  string `gorm:"size:150;uniqueIndex;not null" json:"username"`
	FirstName string `gorm:"size:150" json:"first_name"`
	LastName  string `gorm:"size:150" json:"last_name"`
	Password  string `gorm:"not null" json:"-"`
	AvatarURL string `json:"avatar,omitempty"`
	Role      string `gorm:"size:16;default:user" json:"role"`

	// Authors this user follows. The join table key is
	// (subscriber_id, author_id), so a pair exists at most once.
	Subscriptions []*User `gorm:"many2many:subscriptions;joinForeignKey:SubscriberID;joinReferences:AuthorID" json:"-"`

	Timestamp
}
