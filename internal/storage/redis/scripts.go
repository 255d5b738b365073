package redis

const (
	// setValueScript stores a value and records its key in the lexical index
	setValueScript = `
local value_key = KEYS[1]     -- ktime:kv:{key}
local index_key = KEYS[2]     -- ktime:index

local key = ARGV[1]
local value = ARGV[2]

redis.call('SET', value_key, value)

-- All members share score 0 so ZRANGEBYLEX can serve prefix listing
redis.call('ZADD', index_key, 0, key)

return 'OK'
`

	// deleteValueScript removes a value and its index entry
	deleteValueScript = `
local value_key = KEYS[1]     -- ktime:kv:{key}
local index_key = KEYS[2]     -- ktime:index

local key = ARGV[1]

redis.call('DEL', value_key)
redis.call('ZREM', index_key, key)

return 'OK'
`
)
