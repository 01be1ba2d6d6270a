package sqlinline

const QUpsertUserSummary = `--sql 14dfdd27-a867-49d6-b0e3-7af21a44465a
insert into user_summaries (user_id, email, name, total_credits, dollar_to_credit_pct, updated_at)
values ($1::uuid, $2::text, $3::text, $4::bigint, $5::int, now())
on conflict (user_id) do update set
    email = excluded.email,
    name = excluded.name,
    total_credits = excluded.total_credits,
    dollar_to_credit_pct = excluded.dollar_to_credit_pct,
    updated_at = now();
`

const QListUserSummaries = `--sql 6f2c695c-6c43-4701-86b3-f1d58dc7cdc9
select user_id, email, name, total_credits, dollar_to_credit_pct, updated_at
from user_summaries
order by updated_at desc
limit $1::int;
`
