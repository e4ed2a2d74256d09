package qdrant

import (
	"encoding/json"

	"ctxpipe/internal/domain"
)

// ParseCollectionInfo extracts dimension and distance from the "result"
// object of a collection description. Server versions disagree on the shape:
//
//	config.params.vectors = {size, distance}           single unnamed vector
//	config.params.vectors = {"<name>": {size, distance}} named vectors
//	config.params.vector_size + config.params.distance   older servers
//	vector_size + distance at the top level              oldest servers
//
// Anything that cannot be resolved is reported as Dimension 0 or
// DistanceUnknown. Several named vectors are ambiguous and resolve to unknown.
func ParseCollectionInfo(raw json.RawMessage) domain.CollectionInfo {
	info := domain.CollectionInfo{Distance: domain.DistanceUnknown}

	var result map[string]json.RawMessage
	if err := json.Unmarshal(raw, &result); err != nil {
		return info
	}

	var config struct {
		Params map[string]json.RawMessage `json:"params"`
	}
	if c, ok := result["config"]; ok {
		_ = json.Unmarshal(c, &config)
	}

	if vectors, ok := config.Params["vectors"]; ok {
		if size, dist, ok := parseVectorParams(vectors); ok {
			return fill(info, size, dist)
		}
		var named map[string]json.RawMessage
		if err := json.Unmarshal(vectors, &named); err == nil && len(named) == 1 {
			for _, only := range named {
				if size, dist, ok := parseVectorParams(only); ok {
					return fill(info, size, dist)
				}
			}
		}
		return info
	}

	if size, dist, ok := legacyParams(config.Params); ok {
		return fill(info, size, dist)
	}
	if size, dist, ok := legacyParams(result); ok {
		return fill(info, size, dist)
	}
	return info
}

func parseVectorParams(raw json.RawMessage) (int, string, bool) {
	var p struct {
		Size     *int   `json:"size"`
		Distance string `json:"distance"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.Size == nil {
		return 0, "", false
	}
	return *p.Size, p.Distance, true
}

func legacyParams(m map[string]json.RawMessage) (int, string, bool) {
	rawSize, ok := m["vector_size"]
	if !ok {
		return 0, "", false
	}
	var size int
	if err := json.Unmarshal(rawSize, &size); err != nil {
		return 0, "", false
	}
	var dist string
	if rawDist, ok := m["distance"]; ok {
		_ = json.Unmarshal(rawDist, &dist)
	}
	return size, dist, true
}

func fill(info domain.CollectionInfo, size int, dist string) domain.CollectionInfo {
	if size > 0 {
		info.Dimension = size
	}
	info.Distance = domain.ParseDistance(dist)
	return info
}
