package fieldmapping

import (
	"github.com/Ramsey-B/fern/pkg/models"
)

// alias lists the payload paths a canonical field is read from, in priority order
type alias struct {
	field string
	paths []string
}

var (
	nameAlias        = alias{"fullName", []string{"full_name", "name", "holder_name", "name_en"}}
	nationalityAlias = alias{"nationality", []string{"nationality", "citizenship"}}
	dobAlias         = alias{"dateOfBirth", []string{"date_of_birth", "dob", "birth_date"}}
	genderAlias      = alias{"gender", []string{"sex", "gender"}}
)

// categoryAliases hold one alias table per document category
var categoryAliases = map[models.DocumentCategory][]alias{
	models.CategoryPassport: {
		nameAlias,
		{"surname", []string{"surname", "family_name", "last_name"}},
		{"givenNames", []string{"given_names", "given_name", "first_name"}},
		{"passportNumber", []string{"passport_no", "passport_number", "document_number", "mrz.document_number"}},
		nationalityAlias,
		dobAlias,
		{"placeOfBirth", []string{"place_of_birth", "birth_place"}},
		genderAlias,
		{"issuingCountry", []string{"issuing_country", "issuing_state", "country_code"}},
		{"passportIssueDate", []string{"date_of_issue", "issue_date"}},
		{"passportExpiryDate", []string{"date_of_expiry", "expiry_date", "expiration_date", "mrz.expiry_date"}},
	},
	models.CategoryNationalID: {
		nameAlias,
		{"nationalIdNumber", []string{"id_number", "emirates_id", "national_id", "card_number"}},
		nationalityAlias,
		dobAlias,
		genderAlias,
		{"idIssueDate", []string{"issue_date", "date_of_issue"}},
		{"idExpiryDate", []string{"expiry_date", "date_of_expiry", "card_expiry"}},
	},
	models.CategoryTradeLicense: {
		{"companyName", []string{"company_name", "trade_name", "business_name"}},
		{"licenseNumber", []string{"license_number", "license_no", "licence_number"}},
		{"legalForm", []string{"legal_form", "legal_type"}},
		{"activities", []string{"activities", "business_activities"}},
		{"ownerName", []string{"owner_name", "manager_name", "partners[0].name"}},
		{"licenseIssueDate", []string{"issue_date", "date_of_issue"}},
		{"licenseExpiryDate", []string{"expiry_date", "date_of_expiry"}},
	},
	models.CategoryVisa: {
		nameAlias,
		{"visaNumber", []string{"visa_number", "visa_no", "entry_permit_number", "file_number"}},
		{"visaType", []string{"visa_type", "permit_type"}},
		{"passportNumber", []string{"passport_number", "passport_no"}},
		{"sponsor", []string{"sponsor", "sponsor_name"}},
		{"profession", []string{"profession", "occupation"}},
		nationalityAlias,
		dobAlias,
		{"visaIssueDate", []string{"issue_date", "date_of_issue"}},
		{"visaExpiryDate", []string{"expiry_date", "date_of_expiry", "valid_until"}},
	},
	models.CategoryLaborCard: {
		nameAlias,
		{"laborCardNumber", []string{"card_number", "labor_card_number", "work_permit_number"}},
		{"personalNumber", []string{"personal_number", "person_code"}},
		{"employer", []string{"employer", "establishment_name", "company_name"}},
		{"occupation", []string{"occupation", "profession", "job_title"}},
		nationalityAlias,
		{"laborCardExpiryDate", []string{"expiry_date", "date_of_expiry"}},
	},
}

// genericArrays are copied for documents without an alias table. Each
// target keeps the first source array found.
var genericArrays = []alias{
	{"emails", []string{"email", "emails", "email_addresses"}},
	{"phones", []string{"phone", "phones", "phone_numbers"}},
}

// firstEntryFallbacks fill a canonical field from the first entry of a generic
// array, or from a plain string under the same key
var firstEntryFallbacks = []alias{
	{"email", []string{"email[0]", "emails[0]", "email_addresses[0]", "email"}},
	{"phone", []string{"phone[0]", "phones[0]", "phone_numbers[0]", "phone"}},
}

// dateFields are passed through the date resolver
var dateFields = map[string]bool{
	"dateOfBirth":         true,
	"passportIssueDate":   true,
	"passportExpiryDate":  true,
	"idIssueDate":         true,
	"idExpiryDate":        true,
	"licenseIssueDate":    true,
	"licenseExpiryDate":   true,
	"visaIssueDate":       true,
	"visaExpiryDate":      true,
	"laborCardExpiryDate": true,
}

// IsDateField reports whether a canonical field holds a date
func IsDateField(field string) bool {
	return dateFields[field]
}
