package appconfig

// Schema is the JSON schema configuration files must satisfy.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "model":                {"type": "string", "minLength": 1},
    "enablePrefetch":       {"type": "boolean"},
    "enableCudnnBenchmark": {"type": "boolean"},
    "numStreams":           {"type": "integer", "minimum": 1},
    "warmups":              {"type": "integer", "minimum": 0},
    "iterations":           {"type": "integer", "minimum": 1},
    "seqLen":               {"type": "integer", "minimum": 1},
    "seed":                 {"type": "integer"},
    "transferGBps":         {"type": "number", "minimum": 0},
    "launchLatency":        {"type": "string"},
    "device":               {"type": "integer", "minimum": 0},
    "deviceMemoryGB":       {"type": "number", "exclusiveMinimum": 0},
    "export":               {"type": "string"},
    "showStreams":          {"type": "boolean"},
    "progress":             {"type": "boolean"},
    "debug":                {"type": "boolean"},
    "logFile":              {"type": "string"}
  }
}`
