package interaction

// Column identifies a field of an interaction as shown in the table
type Column string

const (
	ColumnMediaType      Column = "mediaType"
	ColumnAgent          Column = "agent"
	ColumnCustomer       Column = "customer"
	ColumnStartTime      Column = "startTime"
	ColumnEndTime        Column = "endTime"
	ColumnDuration       Column = "duration"
	ColumnDirection      Column = "direction"
	ColumnANI            Column = "ani"
	ColumnDNIS           Column = "dnis"
	ColumnQueue          Column = "queue"
	ColumnWrapUp         Column = "wrapUp"
	ColumnFlow           Column = "flow"
	ColumnConversationID Column = "conversationId"
)

// ColumnInfo describes how a column is presented
type ColumnInfo struct {
	Key      Column `json:"key"`
	Label    string `json:"label"`
	Sortable bool   `json:"sortable"`
}

var columns = []ColumnInfo{
	{Key: ColumnMediaType, Label: "Media Type", Sortable: true},
	{Key: ColumnAgent, Label: "Agent", Sortable: true},
	{Key: ColumnCustomer, Label: "Customer", Sortable: true},
	{Key: ColumnStartTime, Label: "Date", Sortable: true},
	{Key: ColumnEndTime, Label: "End Date", Sortable: true},
	{Key: ColumnDuration, Label: "Duration", Sortable: true},
	{Key: ColumnDirection, Label: "Direction", Sortable: true},
	{Key: ColumnANI, Label: "ANI"},
	{Key: ColumnDNIS, Label: "DNIS"},
	{Key: ColumnQueue, Label: "Queue", Sortable: true},
	{Key: ColumnWrapUp, Label: "Wrap-up", Sortable: true},
	{Key: ColumnFlow, Label: "Flow"},
	{Key: ColumnConversationID, Label: "Conversation ID"},
}

// Columns returns every column in default display order
func Columns() []ColumnInfo {
	out := make([]ColumnInfo, len(columns))
	copy(out, columns)
	return out
}

// Lookup returns the column description for key
func Lookup(key Column) (ColumnInfo, bool) {
	for _, c := range columns {
		if c.Key == key {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// Label returns the display label of a column, or its key when unknown
func (c Column) Label() string {
	if info, ok := Lookup(c); ok {
		return info.Label
	}
	return string(c)
}

// Valid reports whether c is a known column
func (c Column) Valid() bool {
	_, ok := Lookup(c)
	return ok
}
