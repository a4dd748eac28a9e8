package configpage

// Form field keys posted by the configuration page.
const (
	FieldAction        = "id"
	FieldEndpoint      = "DBUriId"
	FieldUsername      = "UserId"
	FieldPassword      = "PasswordId"
	FieldDatabase      = "DBId"
	FieldDebugLogging  = "DebugLoggingId"
	FieldMeasurement   = "MeasurementId"
	FieldField         = "FieldId"
	FieldDeviceRefID   = "DeviceRefId"
	FieldTags          = "TagsId"
	FieldPersistenceID = "PersistenceId"
)

// Query keys understood by Render.
const (
	QueryType          = "type"
	QueryPersistenceID = "PersistenceId"
	QueryTab           = "TabId"

	pageTypeEdit = "edit"
)

// Display regions a submission result can update.
const (
	RegionSettingsError = "message_id"
	RegionRecordError   = "SaveErrorDivId"
)

// Tabs of the list view.
const (
	TabSettings    = 0
	TabPersistence = 1
)

// Action identifies what a form submission asks for.
type Action int

const (
	NoAction Action = iota
	SaveSettings
	CancelEdit
	SaveRecord
	DeleteRecord
)

var actionIDs = map[string]Action{
	"id_SettingSave": SaveSettings,
	"id_CancelP":     CancelEdit,
	"id_SaveP":       SaveRecord,
	"id_DeleteP":     DeleteRecord,
}

// ParseAction maps the posted form identifier to an action. Unknown or empty
// identifiers yield NoAction.
func ParseAction(id string) Action {
	if action, ok := actionIDs[id]; ok {
		return action
	}
	return NoAction
}

// FormID returns the identifier a button posts for the action.
func (a Action) FormID() string {
	for id, action := range actionIDs {
		if action == a {
			return id
		}
	}
	return ""
}

func (a Action) String() string {
	switch a {
	case SaveSettings:
		return "save_settings"
	case CancelEdit:
		return "cancel_edit"
	case SaveRecord:
		return "save_record"
	case DeleteRecord:
		return "delete_record"
	default:
		return "none"
	}
}

// region returns the display region errors for the action are bound to.
func (a Action) region() string {
	if a == SaveSettings {
		return RegionSettingsError
	}
	return RegionRecordError
}
