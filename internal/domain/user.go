package domain

import (
	"fmt"
	"regexp"
)

type UserGroup string

const (
	GroupMembers UserGroup = "members"
	GroupAlumni  UserGroup = "alumni"
)

// User is the slice of the users table the engine needs: group membership
// for quota scoping and identity fields for the payment reference.
type User struct {
	ID    int64
	Group UserGroup
	CRSID *string
	Email string
}

var referenceCleaner = regexp.MustCompile("[^a-zA-Z0-9]")

// PaymentReference is the reference the user must quote on bank transfers:
// their CRSID (or a cleaned prefix of their email), a slash, and their user
// id zero-padded to four digits. Kept under 18 characters so it survives
// bank statement description fields.
func (u User) PaymentReference() string {
	first := ""
	if u.CRSID != nil {
		first = *u.CRSID
	} else {
		first = referenceCleaner.ReplaceAllString(u.Email, "")
		if len(first) > 9 {
			first = first[:9]
		}
	}
	return fmt.Sprintf("%s/%04d", first, u.ID)
}
