package protocol

const (
	configIDSchema = `{"type":"string","pattern":"^c[0-9a-f]+$"}`
	planSchema     = `{"type":"array","minItems":1,"items":{"type":"string","pattern":"^(root|[cft][0-9a-f]+)$"}}`
	portSchema     = `{"type":"integer","minimum":0,"maximum":65535}`
)

// schemas holds one JSON schema per message type. Extra properties are allowed.
var schemas = map[Type]string{
	TypeLog: `{"type":"object","required":["enable"],"properties":{
		"enable":{"type":"boolean"}}}`,
	TypeLoad: `{"type":"object","required":["file"],"properties":{
		"file":{"type":"string","minLength":1}}}`,
	TypeDrop: `{"type":"object","properties":{
		"id":` + configIDSchema + `}}`,
	TypeRun: `{"type":"object","required":["run"],"properties":{
		"run":` + planSchema + `}}`,
	TypeStop: `{"type":"object"}`,
	TypeDebug: `{"type":"object","required":["port","run","serial"],"properties":{
		"port":` + portSchema + `,
		"run":` + planSchema + `,
		"serial":{"type":"object","required":["x","list"],"properties":{
			"x":{"type":"boolean"},
			"list":{"type":"array","items":` + configIDSchema + `}}}}}`,
	TypePrefix: `{"type":"object","required":["id","file","prefix"],"properties":{
		"id":` + configIDSchema + `,
		"file":{"type":"string","minLength":1},
		"prefix":{"type":"string"}}}`,
	TypeFile: `{"type":"object","required":["id","config","file"],"properties":{
		"id":{"type":"string","pattern":"^f[0-9a-f]+$"},
		"config":` + configIDSchema + `,
		"file":{"type":"string"}}}`,
	TypeCase: `{"type":"object","required":["id","file","test"],"properties":{
		"id":{"type":"string","pattern":"^t[0-9a-f]+$"},
		"file":{"type":"string","pattern":"^f[0-9a-f]+$"},
		"test":{"type":"string"}}}`,
	TypeResult: `{"type":"object","required":["test","state"],"properties":{
		"test":{"type":"string","pattern":"^t[0-9a-f]+$"},
		"state":{"enum":["running","passed","failed","skipped","errored"]}}}`,
	TypeDone: `{"type":"object","required":["file"],"properties":{
		"file":{"type":"string","pattern":"^[cf][0-9a-f]+$"}}}`,
	TypeReady: `{"type":"object","required":["config","port"],"properties":{
		"config":` + configIDSchema + `,
		"port":` + portSchema + `}}`,
}
