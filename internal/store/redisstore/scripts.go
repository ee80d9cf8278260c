package redisstore

import "github.com/redis/go-redis/v9"

// createAnswer inserts an answer only when neither the (evaluation, applicant)
// assignment nor the answer key exists, and indexes it in the same step.
//
// KEYS[1] = assignment key
// KEYS[2] = answer key
// KEYS[3] = applicant index (sorted set)
// KEYS[4] = revision index (sorted set)
// ARGV[1] = answer id
// ARGV[2] = answer record JSON
// ARGV[3] = assignment time in unix milliseconds
//
// Returns 1 on insert and 0 when the assignment already exists.
var createAnswer = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 or redis.call('EXISTS', KEYS[2]) == 1 then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[1])
	redis.call('SET', KEYS[2], ARGV[2])
	redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
	redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
	return 1
`)

// saveAnswer replaces an answer when its stored version equals the expected
// one and moves it to the index of its current revision status.
//
// KEYS[1]    = answer key
// KEYS[2..n] = every revision index
// ARGV[1]    = expected version
// ARGV[2]    = answer record JSON
// ARGV[3]    = answer id
// ARGV[4]    = assignment time in unix milliseconds
// ARGV[5]    = position in KEYS of the target revision index
//
// Returns 1 on success, 0 on a version mismatch and -1 when the answer is missing.
var saveAnswer = redis.NewScript(`
	local cur = redis.call('GET', KEYS[1])
	if not cur then
		return -1
	end
	local ok, obj = pcall(cjson.decode, cur)
	if not ok or type(obj) ~= 'table' or tonumber(obj['version']) ~= tonumber(ARGV[1]) then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[2])
	for i = 2, #KEYS do
		redis.call('ZREM', KEYS[i], ARGV[3])
	end
	redis.call('ZADD', KEYS[tonumber(ARGV[5])], ARGV[4], ARGV[3])
	return 1
`)

// swapExam replaces an exam record only if it still holds the value the
// caller read.
//
// KEYS[1] = exam key
// ARGV[1] = previously read JSON
// ARGV[2] = replacement JSON
//
// Returns 1 on success, 0 when the exam changed and -1 when it is missing.
var swapExam = redis.NewScript(`
	local cur = redis.call('GET', KEYS[1])
	if not cur then
		return -1
	end
	if cur ~= ARGV[1] then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[2])
	return 1
`)
