package sqlinline

const QInsertJob = `--sql 2e03a510-270d-4bca-9f01-3536e962a0d4
insert into jobs (id, user_id, type, status, estimated_credits, params, created_at, updated_at)
values ($1::uuid, $2::uuid, $3::text, 'draft', $4::bigint, coalesce($5::jsonb, '{}'::jsonb), now(), now())
returning id;
`

const QSelectJobByID = `--sql c6f375aa-e1b9-4c94-89b7-e5f8461bb4cb
select id, user_id, type, status, estimated_credits, actual_credits,
       coalesce(heygen_video_id, ''), coalesce(translate_id, ''), coalesce(provider_job_id, ''),
       coalesce(result_url, ''), coalesce(error_message, ''), vendor_cost_usd::text, params, created_at, updated_at
from jobs
where id = $1::uuid
limit 1;
`

const QSelectJobForUser = `--sql f60f3d52-1abd-4bcc-b03c-90f3e02f49ec
select id, user_id, type, status, estimated_credits, actual_credits,
       coalesce(heygen_video_id, ''), coalesce(translate_id, ''), coalesce(provider_job_id, ''),
       coalesce(result_url, ''), coalesce(error_message, ''), vendor_cost_usd::text, params, created_at, updated_at
from jobs
where id = $1::uuid and user_id = $2::uuid
limit 1;
`

const QListJobsForUser = `--sql 804406e2-a33e-43c0-b516-f4de94da84e9
select id, type, status, estimated_credits, actual_credits,
       coalesce(result_url, ''), coalesce(error_message, ''), created_at, updated_at
from jobs
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`

// QSelectJobByVendorRef finds the job a webhook refers to. Column picked by
// the caller in priority order: heygen_video_id, translate_id, provider_job_id.
const QSelectJobByHeygenVideoID = `--sql 397e692e-ad48-47d6-9b7e-94d555a79ef8
select id, user_id, type, status, estimated_credits, actual_credits,
       coalesce(heygen_video_id, ''), coalesce(translate_id, ''), coalesce(provider_job_id, ''),
       coalesce(result_url, ''), coalesce(error_message, ''), vendor_cost_usd::text, params, created_at, updated_at
from jobs
where heygen_video_id = $1::text
order by created_at desc
limit 1;
`

const QSelectJobByTranslateID = `--sql 95765eca-4e8a-4537-9b56-8e8a54dcff78
select id, user_id, type, status, estimated_credits, actual_credits,
       coalesce(heygen_video_id, ''), coalesce(translate_id, ''), coalesce(provider_job_id, ''),
       coalesce(result_url, ''), coalesce(error_message, ''), vendor_cost_usd::text, params, created_at, updated_at
from jobs
where translate_id = $1::text
order by created_at desc
limit 1;
`

const QSelectJobByProviderJobID = `--sql 82357300-adab-46c0-9575-e2629faecfaf
select id, user_id, type, status, estimated_credits, actual_credits,
       coalesce(heygen_video_id, ''), coalesce(translate_id, ''), coalesce(provider_job_id, ''),
       coalesce(result_url, ''), coalesce(error_message, ''), vendor_cost_usd::text, params, created_at, updated_at
from jobs
where provider_job_id = $1::text
order by created_at desc
limit 1;
`

// QMarkJobQueued records the vendor identifiers returned at submission time.
const QMarkJobQueued = `--sql 55e30871-5d91-4be0-9f7c-d85d19207395
update jobs
set status = 'queued',
    heygen_video_id = nullif($2::text, ''),
    translate_id = nullif($3::text, ''),
    provider_job_id = nullif($4::text, ''),
    updated_at = now()
where id = $1::uuid;
`

// QUpdateJobStatus performs a guarded transition: the update only lands when
// the job is still in the expected status, which keeps terminal states sticky
// under concurrent webhook deliveries.
const QUpdateJobStatus = `--sql f82e5608-f661-427c-bbb9-3b09870297da
update jobs
set status = $3::text,
    error_message = coalesce(nullif($4::text, ''), error_message),
    updated_at = now()
where id = $1::uuid and status = $2::text
returning id;
`

const QFinalizeJobSuccess = `--sql ba1745d5-7088-419a-be81-bf4043a9da63
update jobs
set status = 'done',
    actual_credits = $3::bigint,
    result_url = coalesce(nullif($4::text, ''), result_url),
    vendor_cost_usd = $5::numeric,
    updated_at = now()
where id = $1::uuid and status = $2::text
returning id;
`

// QSelectStaleJobs feeds the worker sweep: vendor-submitted jobs whose
// webhook never arrived.
const QSelectStaleJobs = `--sql 2bccdaea-b0a1-4638-8fe6-a3617fd8beb4
select id, user_id, type, status, estimated_credits, actual_credits,
       coalesce(heygen_video_id, ''), coalesce(translate_id, ''), coalesce(provider_job_id, ''),
       coalesce(result_url, ''), coalesce(error_message, ''), vendor_cost_usd::text, params, created_at, updated_at
from jobs
where status in ('queued', 'processing')
  and updated_at < now() - ($1::int * interval '1 minute')
order by updated_at asc
limit $2::int;
`
